package pg

import (
	"context"
	"errors"
	"testing"

	"visawh/internal/platform/testkit"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dsn = "postgres://ledger:pw@db:5432/visawh?sslmode=disable"

func TestOpen(t *testing.T) {
	testkit.Serial(t)

	var seen *pgxpool.Config
	testkit.Swap(t, &newPool, func(_ context.Context, c *pgxpool.Config) (*pgxpool.Pool, error) {
		seen = c
		return &pgxpool.Pool{}, nil // zero pool; never closed
	})

	p, err := Open(context.Background(), Config{URL: dsn, MaxConns: 3, SlowMs: 250, AppName: "visawh-build"}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if seen.MaxConns != 3 {
		t.Fatalf("MaxConns = %d", seen.MaxConns)
	}
	if got := seen.ConnConfig.RuntimeParams["application_name"]; got != "visawh-build" {
		t.Fatalf("application_name = %q", got)
	}
	if p.SlowMs != 250 || p.Pool == nil {
		t.Fatalf("unexpected client %+v", p)
	}
}

func TestOpen_Errors(t *testing.T) {
	testkit.Serial(t)

	if _, err := Open(context.Background(), Config{URL: "://bad"}, nil); err == nil {
		t.Fatal("expected parse error")
	}

	testkit.Swap(t, &newPool, func(context.Context, *pgxpool.Config) (*pgxpool.Pool, error) {
		return nil, errors.New("refused")
	})
	if _, err := Open(context.Background(), Config{URL: dsn}, nil); err == nil {
		t.Fatal("expected pool error")
	}
}

func TestClose_NilSafe(t *testing.T) {
	t.Parallel()

	var p *PG
	p.Close()
	(&PG{}).Close()
}
