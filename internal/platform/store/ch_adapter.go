package store

import (
	"context"
	"errors"

	"visawh/internal/platform/store/ch"
)

// chAdapter exposes *ch.CH as the Clickhouse seam
type chAdapter struct{ *ch.CH }

var _ Clickhouse = chAdapter{}

func newCHAdapter(c *ch.CH) Clickhouse { return chAdapter{c} }

func (a chAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	r, err := a.CH.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return chRows{r}, nil
}

func (a chAdapter) Ping(ctx context.Context) error {
	if a.CH == nil {
		return errors.New("ch: nil client")
	}
	return a.CH.Ping(ctx)
}

// chRows drops the close error so ch.Rows satisfies Rows
type chRows struct{ ch.Rows }

func (r chRows) Close() { _ = r.Rows.Close() }
