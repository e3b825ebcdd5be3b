package store

import (
	"time"

	"visawh/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string // postgres application_name

	PG PGConfig
	CH CHConfig
}

// PGConfig configures the optional postgres build ledger
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs:
	ConnectRetries int           // default 6 (~10s with exponential backoff)
	PingTimeout    time.Duration // default 3s
}

// CHConfig configures the optional clickhouse publish target
type CHConfig struct {
	Enabled bool
	URL     string
	Role    string
	Tag     string
}

// FromConfig reads SERVICE_PGSQL_* and SERVICE_CLICKHOUSE_*; a backend is enabled only when its DBURL is set
func FromConfig(root config.Conf, role string) Config {
	pg := root.Prefix("SERVICE_PGSQL_")
	ch := root.Prefix("SERVICE_CLICKHOUSE_")

	pgURL := pg.MayString("DBURL", "")
	chURL := ch.MayString("DBURL", "")

	app := "visawh"
	if role != "" {
		app += "-" + role
	}
	return Config{
		AppName: app,
		PG: PGConfig{
			Enabled:        pgURL != "",
			URL:            pgURL,
			MaxConns:       int32(pg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs:    pg.MayInt("SLOW_MS", 500),
			LogSQL:         pg.MayBool("LOG_SQL", false),
			ConnectRetries: pg.MayInt("CONNECT_RETRIES", 6),
			PingTimeout:    pg.MayDuration("PING_TIMEOUT", 3*time.Second),
		},
		CH: CHConfig{
			Enabled: chURL != "",
			URL:     chURL,
			Role:    role,
		},
	}
}
