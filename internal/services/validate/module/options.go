package module

import (
	"strings"

	"visawh/internal/platform/config"
	"visawh/internal/platform/validate"
)

// Engines
const (
	EngineParquet = "parquet"
	EngineDuckDB  = "duckdb"
)

// Options holds the validator configuration
type Options struct {
	Engine           string   `json:"engine" validate:"oneof=parquet duckdb"`
	RefWarn          float64  `json:"ref_warn" validate:"gte=0,lte=1"`
	RefFail          float64  `json:"ref_fail" validate:"gte=0,lte=1,ltefield=RefWarn"`
	Coverage         []string `json:"coverage_min"`
	CoverageBlocking bool     `json:"coverage_blocking"`
}

// FromConfig reads the validator options from config with CORE_VALIDATE_ prefix
func FromConfig(cfg config.Conf) Options {
	vc := cfg.Prefix("CORE_VALIDATE_")
	return Options{
		Engine:           strings.ToLower(vc.MayEnum("ENGINE", EngineParquet, EngineParquet, EngineDuckDB)),
		RefWarn:          vc.MayRatio("REF_WARN", 1),
		RefFail:          vc.MayRatio("REF_FAIL", 0),
		Coverage:         vc.MayCSV("COVERAGE_MIN", nil),
		CoverageBlocking: vc.MayBool("COVERAGE_BLOCKING", false),
	}
}

// Validate checks option ranges
func (o Options) Validate() error { return validate.Struct(o) }
