package service

import (
	"context"
	"reflect"
	"strings"
	"time"

	"visawh/internal/adapters/parquetfs"
	empdom "visawh/internal/services/employer/domain"
	emprepo "visawh/internal/services/employer/repo"
	factsdom "visawh/internal/services/facts/domain"
	"visawh/internal/services/publish/domain"
)

// RunIDColumn tags every published row with the build that produced it
const RunIDColumn = "run_id"

// tableDef binds a warehouse table to its row type
type tableDef struct {
	name    string
	columns []domain.Column
	orderBy []string
	scan    func(ctx context.Context, root string, fn func(rows [][]any) error) error
}

func defOf[T any](name string, orderBy ...string) tableDef {
	fields := fieldsOf(reflect.TypeFor[T]())
	cols := make([]domain.Column, len(fields))
	for i, f := range fields {
		cols[i] = domain.Column{Name: f.name, Type: f.chType}
	}
	return tableDef{
		name:    name,
		columns: cols,
		orderBy: orderBy,
		scan: func(ctx context.Context, root string, fn func([][]any) error) error {
			return parquetfs.ScanTable(ctx, parquetfs.NewTable(root, name), func(_ string, rows []T) error {
				out := make([][]any, len(rows))
				for i := range rows {
					out[i] = valuesOf(reflect.ValueOf(rows[i]), fields)
				}
				return fn(out)
			})
		},
	}
}

// Tables lists every published table in dependency order
var Tables = []tableDef{
	defOf[empdom.Employer](emprepo.Table, "employer_id"),
	defOf[factsdom.Cutoff](factsdom.TableCutoffs, "bulletin_year", "bulletin_month", "category", "country", "chart"),
	defOf[factsdom.Filing](factsdom.TablePerm, "case_id"),
	defOf[factsdom.Filing](factsdom.TableLCA, "case_id"),
	defOf[factsdom.WarnEvent](factsdom.TableWarn, "event_key"),
	defOf[factsdom.Benchmark](factsdom.TableBenchmarks, "soc_code", "area_code", "ref_year"),
}

type field struct {
	index    int
	name     string
	chType   string
	optional bool
}

var timeType = reflect.TypeFor[time.Time]()

func fieldsOf(t reflect.Type) []field {
	var out []field
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("parquet")
		if tag == "" || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		f := field{index: i, name: parts[0]}
		for _, p := range parts[1:] {
			if p == "optional" {
				f.optional = true
			}
		}
		f.chType = chTypeOf(sf.Type, f.optional)
		out = append(out, f)
	}
	return out
}

func chTypeOf(t reflect.Type, optional bool) string {
	nullable := func(s string) string {
		if optional {
			return "Nullable(" + s + ")"
		}
		return s
	}
	if t == timeType {
		return nullable("DateTime64(3, 'UTC')")
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "Nullable(" + chTypeOf(t.Elem(), false) + ")"
	case reflect.Slice:
		return "Array(" + chTypeOf(t.Elem(), false) + ")"
	case reflect.Int32:
		return "Int32"
	case reflect.Int, reflect.Int64:
		return "Int64"
	case reflect.Float64:
		return "Float64"
	case reflect.Bool:
		return "Bool"
	}
	return "String"
}

func valuesOf(v reflect.Value, fields []field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		fv := v.Field(f.index)
		switch {
		case fv.Kind() == reflect.Pointer:
			if fv.IsNil() {
				out[i] = nil
			} else {
				out[i] = fv.Elem().Interface()
			}
		case fv.Type() == timeType && f.optional:
			if tm := fv.Interface().(time.Time); tm.IsZero() {
				out[i] = nil
			} else {
				out[i] = tm
			}
		default:
			out[i] = fv.Interface()
		}
	}
	return out
}
