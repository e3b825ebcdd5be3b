package module

import (
	"testing"

	"visawh/internal/modkit"
	"visawh/internal/platform/config"
	perr "visawh/internal/platform/errors"
)

func TestFromConfig_Defaults(t *testing.T) {
	o := FromConfig(config.FromMap(nil))
	if o.Engine != EngineParquet || o.RefWarn != 1 || o.RefFail != 0 || o.CoverageBlocking {
		t.Fatalf("defaults = %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestOptions_Validate(t *testing.T) {
	cases := []struct {
		name  string
		opts  Options
		field string
	}{
		{"engine", Options{Engine: "sqlite", RefWarn: 1}, "engine"},
		{"fail above warn", Options{Engine: EngineParquet, RefWarn: 0.5, RefFail: 0.8}, "ref_fail"},
		{"warn out of range", Options{Engine: EngineParquet, RefWarn: 2}, "ref_warn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pe, ok := perr.As(tc.opts.Validate())
			if !ok || pe.Code() != perr.ErrorCodeValidation {
				t.Fatalf("want validation error")
			}
			if pe.Field() != tc.field {
				t.Fatalf("field = %q, want %q", pe.Field(), tc.field)
			}
		})
	}
}

func TestNew(t *testing.T) {
	m, err := New(modkit.Deps{Cfg: config.FromMap(map[string]string{
		"CORE_VALIDATE_REF_WARN":     "0.99",
		"CORE_VALIDATE_REF_FAIL":     "0.95",
		"CORE_VALIDATE_COVERAGE_MIN": "fact_perm.soc_code=0.9",
	})})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer m.Close()
	if m.Name() != "validate" || m.Ports().(Ports).Validator == nil {
		t.Fatalf("module not wired: %s %+v", m.Name(), m.Ports())
	}
}

func TestNew_BadCoverage(t *testing.T) {
	_, err := New(modkit.Deps{Cfg: config.FromMap(map[string]string{
		"CORE_VALIDATE_COVERAGE_MIN": "soc_code=0.9",
	})})
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}
