// Package repo provides postgres access for the build run ledger
package repo

import (
	"context"
	_ "embed"
	"strings"

	"visawh/internal/modkit/repokit"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/store"
	"visawh/internal/services/build/domain"
)

//go:embed schema.sql
var schema string

type (
	// PG is a Postgres binder for domain.LedgerRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.LedgerRepo
func NewPG() repokit.Binder[domain.LedgerRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.LedgerRepo { return &queries{q: q} }

// TxTuning is a begin hook for ledger transactions
// SET LOCAL only lives for the duration of the current transaction
func TxTuning(ctx context.Context, q repokit.Queryer) error {
	_, _ = q.Exec(ctx, "SET LOCAL statement_timeout = 0")
	return nil
}

// EnsureSchema creates the ledger tables when missing
func (r *queries) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.q.Exec(ctx, stmt); err != nil {
			return perr.FromPostgres(err, "ledger ensure schema")
		}
	}
	return nil
}

// StartRun marks the start of a build run (idempotent)
func (r *queries) StartRun(ctx context.Context, runID, version string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO build_runs (run_id, version_path, started_at, status)
		VALUES ($1, $2, now(), 'running')
		ON CONFLICT (run_id) DO UPDATE
		SET started_at = now(), status = 'running', error = null, finished_at = null
	`, runID, version)
	return perr.FromPostgres(err, "ledger start run")
}

// FinishRun marks the end of a build run; the run must have been started
func (r *queries) FinishRun(ctx context.Context, runID string, fin domain.RunFinish) error {
	err := store.ExecOne(ctx, r.q, `
		UPDATE build_runs SET
			finished_at = now(),
			status = $2,
			validation = NULLIF($3,''),
			promoted = $4,
			records = $5,
			rejects = $6,
			conflicts = $7,
			partitions = $8,
			failed = $9,
			elapsed_ms = $10,
			error = NULLIF($11,'')
		WHERE run_id = $1
	`,
		runID, fin.Status, fin.Validation, fin.Promoted, fin.Records, fin.Rejects,
		fin.Conflicts, fin.Partitions, fin.Failed, fin.ElapsedMS, fin.ErrText,
	)
	return perr.FromPostgres(err, "ledger finish run")
}

// StartPartition marks a partition attempt; a retry resets the previous attempt's outcome
func (r *queries) StartPartition(ctx context.Context, runID, table, partition string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO build_partitions (run_id, table_name, partition_key, started_at, status)
		VALUES ($1, $2, $3, now(), 'running')
		ON CONFLICT (run_id, table_name, partition_key) DO UPDATE
		SET started_at = now(), status = 'running', error = null, finished_at = null
	`, runID, table, partition)
	return perr.FromPostgres(err, "ledger start partition")
}

// FinishPartition records a partition outcome; the attempt must have been started
func (r *queries) FinishPartition(ctx context.Context, runID, table, partition string, fin domain.PartitionFinish) error {
	err := store.ExecOne(ctx, r.q, `
		UPDATE build_partitions SET
			finished_at = now(),
			status = $4,
			rows_written = $5,
			bytes = $6,
			attempt = $7,
			elapsed_ms = $8,
			error = NULLIF($9,'')
		WHERE run_id = $1 AND table_name = $2 AND partition_key = $3
	`,
		runID, table, partition, fin.Status, fin.Rows, fin.Bytes, fin.Attempt, fin.ElapsedMS, fin.ErrText,
	)
	return perr.FromPostgres(err, "ledger finish partition")
}
