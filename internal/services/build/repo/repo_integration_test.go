//go:build integration_pg

package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"visawh/internal/modkit/repokit"
	"visawh/internal/platform/store"
	"visawh/internal/services/build/domain"
	"visawh/internal/services/build/guardrails"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}
	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mp.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func TestLedger_Integration_RunAndPartitions(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Config{PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2}})
	if err != nil {
		t.Fatalf("store open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	db := repokit.WithBeginHooks(st.PG, TxTuning)
	b := NewPG()
	tx := func(fn func(domain.LedgerRepo) error) {
		t.Helper()
		if err := db.Tx(ctx, func(q repokit.Queryer) error { return fn(b.Bind(q)) }); err != nil {
			t.Fatalf("tx: %v", err)
		}
	}

	// twice: the schema must be idempotent
	tx(func(r domain.LedgerRepo) error { return r.EnsureSchema(ctx) })
	tx(func(r domain.LedgerRepo) error { return r.EnsureSchema(ctx) })

	tx(func(r domain.LedgerRepo) error { return r.StartRun(ctx, "run-1", "/out/versions/run-1") })
	tx(func(r domain.LedgerRepo) error { return r.StartPartition(ctx, "run-1", "fact_perm", "fiscal_year=2024") })
	tx(func(r domain.LedgerRepo) error {
		return r.FinishPartition(ctx, "run-1", "fact_perm", "fiscal_year=2024", domain.PartitionFinish{
			Status: domain.StatusOK, Rows: 12, Bytes: 2048, Attempt: 1, ElapsedMS: 3,
		})
	})
	tx(func(r domain.LedgerRepo) error {
		return r.FinishRun(ctx, "run-1", domain.RunFinish{
			Status: domain.StatusOK, Validation: "ok", Promoted: true, Records: 12, Partitions: 1,
		})
	})

	var status string
	var promoted bool
	if err := st.PG.QueryRow(ctx, `select status, promoted from build_runs where run_id = $1`, "run-1").Scan(&status, &promoted); err != nil {
		t.Fatalf("select run: %v", err)
	}
	if status != domain.StatusOK || !promoted {
		t.Fatalf("run row: status=%q promoted=%v", status, promoted)
	}

	var rows, attempt int
	if err := st.PG.QueryRow(ctx, `
		select rows_written, attempt from build_partitions
		where run_id = $1 and table_name = $2 and partition_key = $3
	`, "run-1", "fact_perm", "fiscal_year=2024").Scan(&rows, &attempt); err != nil {
		t.Fatalf("select partition: %v", err)
	}
	if rows != 12 || attempt != 1 {
		t.Fatalf("partition row: rows=%d attempt=%d", rows, attempt)
	}

	lease := guardrails.MakeRunLease(db)
	err = lease(ctx, "/out", func(ctx context.Context) error {
		if err := lease(ctx, "/out", func(context.Context) error { return nil }); !errors.Is(err, guardrails.ErrLeaseHeld) {
			t.Fatalf("nested claim should be held, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if err := lease(ctx, "/out", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("lease should be released, got %v", err)
	}
}
