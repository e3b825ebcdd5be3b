package module

import (
	"time"

	"visawh/internal/platform/config"
	"visawh/internal/platform/validate"
)

// Options holds configuration options for the build service
type Options struct {
	DataRoot         string        `json:"data_root" validate:"required"`
	OutRoot          string        `json:"out_root" validate:"required,nefield=DataRoot"`
	Aliases          string        `json:"aliases"`
	Readers          int           `json:"readers" validate:"gte=1,lte=256"`
	Workers          int           `json:"workers" validate:"gte=1,lte=256"`
	MaxRetries       int           `json:"retries" validate:"gte=1,lte=20"`
	RetryBase        time.Duration `json:"retry_base" validate:"gte=0"`
	RunTimeout       time.Duration `json:"timeout" validate:"gte=0"`
	ReadTimeout      time.Duration `json:"read_timeout" validate:"gte=0"`
	PartitionTimeout time.Duration `json:"partition_timeout" validate:"gte=0"`
	DBTimeout        time.Duration `json:"db_timeout" validate:"gte=0"`
	DriftFatal       bool          `json:"drift_fatal"`
	MetricsFile      string        `json:"metrics_file"`
}

// FromConfig reads the build options from config with CORE_BUILD_ prefix
func FromConfig(cfg config.Conf) Options {
	bc := cfg.Prefix("CORE_BUILD_")
	return Options{
		DataRoot:         bc.MayPath("DATA_ROOT", "data"),
		OutRoot:          bc.MayPath("OUT_ROOT", "warehouse"),
		Aliases:          bc.MayPath("ALIASES", ""),
		Readers:          bc.MayInt("READERS", 4),
		Workers:          bc.MayInt("WORKERS", 4),
		MaxRetries:       bc.MayInt("RETRIES", 3),
		RetryBase:        bc.MayDuration("RETRY_BASE", 500*time.Millisecond),
		RunTimeout:       bc.MayDuration("TIMEOUT", 0),
		ReadTimeout:      bc.MayDuration("READ_TIMEOUT", 30*time.Minute),
		PartitionTimeout: bc.MayDuration("PARTITION_TIMEOUT", 10*time.Minute),
		DBTimeout:        bc.MayDuration("DB_TIMEOUT", 10*time.Second),
		DriftFatal:       bc.MayBool("DRIFT_FATAL", false),
		MetricsFile:      bc.MayPath("METRICS_FILE", ""),
	}
}

// merge applies non-zero overrides; DriftFatal only ever turns on
func (o Options) merge(over Options) Options {
	if over.DataRoot != "" {
		o.DataRoot = over.DataRoot
	}
	if over.OutRoot != "" {
		o.OutRoot = over.OutRoot
	}
	if over.Aliases != "" {
		o.Aliases = over.Aliases
	}
	if over.Readers != 0 {
		o.Readers = over.Readers
	}
	if over.Workers != 0 {
		o.Workers = over.Workers
	}
	if over.MetricsFile != "" {
		o.MetricsFile = over.MetricsFile
	}
	o.DriftFatal = o.DriftFatal || over.DriftFatal
	return o
}

// Validate checks option ranges
func (o Options) Validate() error { return validate.Struct(o) }
