// Package repokit provides the SQL seams build repositories bind to
package repokit

import "visawh/internal/platform/store"

type (
	// Queryer is the read and write surface a bound repo sees, inside or outside a tx
	Queryer = store.RowQuerier

	// TxRunner runs a function inside one transaction
	TxRunner = store.TxRunner

	// Rows are the result set of a query
	Rows = store.Rows

	// Row is a single row result from a query
	Row = store.Row

	// CommandTag is the result of a command that modifies data
	CommandTag = store.CommandTag
)
