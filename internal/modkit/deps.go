// Package modkit provides module wiring and core deps
package modkit

import (
	"visawh/internal/modkit/repokit"
	"visawh/internal/platform/config"
	"visawh/internal/platform/logger"
	"visawh/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// PG and CH are nil unless their DBURL is configured
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner // build ledger
	CH  store.Clickhouse // publish target
}

// HasLedger reports whether a postgres seam was wired
func (d Deps) HasLedger() bool { return d.PG != nil }

// HasClickhouse reports whether a clickhouse seam was wired
func (d Deps) HasClickhouse() bool { return d.CH != nil }
