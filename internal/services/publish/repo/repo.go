// Package repo provides the ClickHouse table repository for publishing
package repo

import (
	"context"
	"strings"

	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/store"
	"visawh/internal/platform/store/ch"
	"visawh/internal/services/publish/domain"
)

// CH writes published tables through the store ClickHouse seam
type CH struct {
	db store.Clickhouse
}

// NewCH constructs a new ClickHouse table repo
func NewCH(db store.Clickhouse) *CH { return &CH{db: db} }

// EnsureTable creates t when missing; re-published keys collapse on merge
func (r *CH) EnsureTable(ctx context.Context, t domain.Table) error {
	if err := r.db.Exec(ctx, CreateSQL(t)); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "ensure %s", t.Name)
	}
	return nil
}

// Insert sends one batch for t
func (r *CH) Insert(ctx context.Context, t domain.Table, rows domain.Batch) error {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Name
	}
	if err := r.db.Insert(ctx, t.Name, cols, rows); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "insert %s", t.Name)
	}
	return nil
}

// CreateSQL renders the DDL for t
func CreateSQL(t domain.Table) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(ch.Ident(t.Name))
	sb.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ch.Ident(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(c.Type)
	}
	sb.WriteString(") ENGINE = ReplacingMergeTree ORDER BY (")
	for i, k := range t.OrderBy {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ch.Ident(k))
	}
	sb.WriteByte(')')
	return sb.String()
}
