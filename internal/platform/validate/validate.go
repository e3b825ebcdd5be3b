// Package validate checks option structs and alias documents with
// go-playground/validator and reports the first failure as a perr
// validation error naming the offending field
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	perr "visawh/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// column names are lower snake case, the form they take in parquet and clickhouse
var columnRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type checker struct {
	v     *validator.Validate
	trans ut.Translator
}

var shared = sync.OnceValue(func() *checker {
	loc := en.New()
	trans, _ := ut.New(loc, loc).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(tagName)
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	_ = v.RegisterValidation("column", func(fl validator.FieldLevel) bool {
		return columnRe.MatchString(fl.Field().String())
	})

	for tag, text := range map[string]string{
		"min":    "{0} must be at least {1}",
		"max":    "{0} must be at most {1}",
		"oneof":  "{0} must be one of [{1}]",
		"column": "{0} must be a lower snake_case column name",
	} {
		message(v, trans, tag, text)
	}
	return &checker{v: v, trans: trans}
})

// tagName reports fields by their yaml, then json, name so messages match the document being edited
func tagName(fld reflect.StructField) string {
	for _, key := range []string{"yaml", "json"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return fld.Name
}

func message(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}

// Struct validates v; the returned error carries the field path without the root type,
// e.g. domains[0].layouts[1].name
func Struct(v any) error {
	c := shared()
	err := c.v.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return perr.Wrap(err, perr.ErrorCodeValidation, "validation error")
	}
	fe := verrs[0]
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	return perr.WithField(perr.New(perr.ErrorCodeValidation, fe.Translate(c.trans)), path)
}
