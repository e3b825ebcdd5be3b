package module

import (
	"visawh/internal/platform/config"
	"visawh/internal/platform/validate"
)

// Options holds the ClickHouse publish configuration
type Options struct {
	Enabled     bool   `json:"enabled"`
	TablePrefix string `json:"table_prefix" validate:"omitempty,max=32"`
	Batch       int    `json:"batch" validate:"gte=1,lte=1000000"`
}

// FromConfig reads the publish options from config with CORE_PUBLISH_ prefix
func FromConfig(cfg config.Conf) Options {
	pc := cfg.Prefix("CORE_PUBLISH_")
	return Options{
		Enabled:     pc.MayBool("ENABLED", false),
		TablePrefix: pc.MayString("TABLE_PREFIX", ""),
		Batch:       pc.MayInt("BATCH", 10_000),
	}
}

// Validate checks option ranges
func (o Options) Validate() error { return validate.Struct(o) }
