// Package domain holds the ports and ledger records of a warehouse build
package domain

import (
	"context"

	vdom "visawh/internal/services/validate/domain"
)

// Layout of a build output root
const (
	VersionsDir   = "versions"
	CurrentFile   = "CURRENT"
	ReportFile    = "_report.json"
	QuarantineDir = "_quarantine"
	RejectsFile   = "rejects.jsonl"
	ConflictsFile = "conflicts.jsonl"
)

// Ledger statuses
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusError   = "error"
)

// RunnerPort is the public port exposed by the build module
type RunnerPort interface {
	// RunBuild produces one version and promotes it when validation passes
	// The report is returned even when err is non nil
	RunBuild(ctx context.Context) (vdom.Report, error)
}

// LedgerRepo records build runs and partition outcomes
type LedgerRepo interface {
	// EnsureSchema creates the ledger tables when missing
	EnsureSchema(ctx context.Context) error

	// StartRun marks the beginning of a build run (idempotent)
	StartRun(ctx context.Context, runID, version string) error

	// FinishRun marks the end of a build run (idempotent)
	FinishRun(ctx context.Context, runID string, fin RunFinish) error

	// StartPartition marks a partition write attempt
	StartPartition(ctx context.Context, runID, table, partition string) error

	// FinishPartition records the outcome of a partition write
	FinishPartition(ctx context.Context, runID, table, partition string, fin PartitionFinish) error
}

// RunFinish is the summary of a completed build run
type RunFinish struct {
	Status     string
	Validation string
	Promoted   bool
	Records    int
	Rejects    int
	Conflicts  int
	Partitions int
	Failed     int
	ElapsedMS  int
	ErrText    string
}

// PartitionFinish is the summary of one partition write
type PartitionFinish struct {
	Status    string
	Rows      int
	Bytes     int64
	Attempt   int
	ElapsedMS int
	ErrText   string
}

// Publisher copies a promoted version to an external store
type Publisher interface {
	// Publish loads every table under root and returns rows published per table
	Publish(ctx context.Context, runID, root string) (map[string]int, error)
}
