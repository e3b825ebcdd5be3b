// Package aliasmap loads the column alias tables that map raw extract headers onto logical
// fields, per source domain and fiscal era
package aliasmap

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/validate"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yml
var defaultDoc []byte

// Field kinds understood by the reconciler
const (
	KindText   = "text"
	KindCode   = "code"
	KindDate   = "date"
	KindMoney  = "money"
	KindInt    = "int"
	KindFloat  = "float"
	KindBool   = "bool"
	KindCutoff = "cutoff"
)

// Doc is the whole alias document
type Doc struct {
	Version  int      `yaml:"version" validate:"eq=1"`
	Employer Employer `yaml:"employer"`
	Domains  []Domain `yaml:"domains" validate:"required,min=1,dive"`
}

// Employer carries the employer-name normalization rules
type Employer struct {
	MinLen   int      `yaml:"min_len" validate:"omitempty,min=1,max=16"`
	Suffixes []string `yaml:"suffixes" validate:"dive,required"`
}

// Domain is one source domain: where its files live and its ordered era layouts
type Domain struct {
	Name    string   `yaml:"name" validate:"required,oneof=cutoffs perm lca warn benchmarks"`
	Subdir  string   `yaml:"subdir" validate:"required"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Layouts []Layout `yaml:"layouts" validate:"required,min=1,dive"`
}

// Layout applies to periods whose year lies in [From, To]; To 0 is open ended
type Layout struct {
	Name   string  `yaml:"name" validate:"required"`
	From   int     `yaml:"from" validate:"min=0"`
	To     int     `yaml:"to" validate:"min=0"`
	Fields []Field `yaml:"fields" validate:"required,min=1,dive"`
}

// Field maps one logical field to its ordered raw header aliases
type Field struct {
	Name      string            `yaml:"name" validate:"required,column"`
	Kind      string            `yaml:"kind" validate:"required,oneof=text code date money int float bool cutoff"`
	Required  bool              `yaml:"required"`
	Aliases   []string          `yaml:"aliases" validate:"required,min=1,dive,required"`
	Layouts   []string          `yaml:"layouts"`                                // date layouts, first match wins
	Invert    []string          `yaml:"invert"`                                 // aliases whose boolean values are inverted
	UnitField string            `yaml:"unit_field" validate:"omitempty,column"` // money: logical field holding the pay unit
	Values    map[string]string `yaml:"values"`                                 // raw (upper-cased) to canonical value
	Nulls     []string          `yaml:"nulls"`                                  // extra raw values treated as missing
}

// Contains reports whether the layout covers year
func (l Layout) Contains(year int) bool {
	return year >= l.From && (l.To == 0 || year <= l.To)
}

// Field returns the named field
func (l Layout) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Domain returns the named domain
func (d *Doc) Domain(name string) (Domain, bool) {
	for _, dm := range d.Domains {
		if dm.Name == name {
			return dm, true
		}
	}
	return Domain{}, false
}

// Default returns the embedded alias document
func Default() (*Doc, error) {
	return Parse(bytes.NewReader(defaultDoc))
}

// Load reads an alias document from path, or the embedded default when path is empty
func Load(path string) (*Doc, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "open aliases %s", path)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, perr.WithOp(err, path)
	}
	return doc, nil
}

// Parse decodes and validates a document; unknown keys are rejected
func Parse(r io.Reader) (*Doc, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Doc
	if err := dec.Decode(&doc); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeValidation, "decode aliases")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate runs struct validation, then the cross-field rules struct tags cannot express
func (d *Doc) Validate() error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	seen := map[string]bool{}
	for di, dm := range d.Domains {
		if seen[dm.Name] {
			return fieldErr(fmt.Sprintf("domains[%d].name", di), "duplicate domain %q", dm.Name)
		}
		seen[dm.Name] = true
		for li, l := range dm.Layouts {
			at := fmt.Sprintf("domains[%d].layouts[%d]", di, li)
			if l.To != 0 && l.To < l.From {
				return fieldErr(at+".to", "layout %s: to %d before from %d", l.Name, l.To, l.From)
			}
			for lj := 0; lj < li; lj++ {
				if overlaps(dm.Layouts[lj], l) {
					return fieldErr(at, "layout %s overlaps %s in domain %s", l.Name, dm.Layouts[lj].Name, dm.Name)
				}
			}
			if err := checkFields(at, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkFields(at string, l Layout) error {
	names := map[string]bool{}
	for fi, f := range l.Fields {
		names[f.Name] = true
		if f.Kind == KindDate && len(f.Layouts) == 0 {
			return fieldErr(fmt.Sprintf("%s.fields[%d].layouts", at, fi), "date field %s needs at least one layout", f.Name)
		}
		if f.Kind != KindBool && len(f.Invert) > 0 {
			return fieldErr(fmt.Sprintf("%s.fields[%d].invert", at, fi), "invert only applies to bool fields (%s)", f.Name)
		}
	}
	for fi, f := range l.Fields {
		if f.UnitField == "" {
			continue
		}
		if f.Kind != KindMoney || !names[f.UnitField] {
			return fieldErr(fmt.Sprintf("%s.fields[%d].unit_field", at, fi), "unit_field %q of %s must name a field in the same layout", f.UnitField, f.Name)
		}
	}
	if len(names) != len(l.Fields) {
		return fieldErr(at+".fields", "layout %s repeats a field name", l.Name)
	}
	return nil
}

func overlaps(a, b Layout) bool {
	aTo, bTo := a.To, b.To
	if aTo == 0 {
		aTo = 1<<31 - 1
	}
	if bTo == 0 {
		bTo = 1<<31 - 1
	}
	return a.From <= bTo && b.From <= aTo
}

func fieldErr(field, format string, a ...any) error {
	return perr.WithField(perr.Validationf(format, a...), field)
}
