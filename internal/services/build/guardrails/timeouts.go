// Package guardrails bounds a build run: per stage time budgets and the
// output root lease
package guardrails

import (
	"context"
	"time"
)

// Stage names a level of build work that can carry its own budget
type Stage int

const (
	StageRun       Stage = iota // whole build
	StageRead                   // reading and reconciling one extract
	StagePartition              // one partition write attempt
	StageDB                     // one ledger statement
)

// Timeouts holds per stage budgets; zero means the stage adds no deadline
type Timeouts struct {
	Run       time.Duration
	Read      time.Duration
	Partition time.Duration
	DB        time.Duration
}

func (t Timeouts) budget(s Stage) time.Duration {
	switch s {
	case StageRun:
		return t.Run
	case StageRead:
		return t.Read
	case StagePartition:
		return t.Partition
	case StageDB:
		return t.DB
	}
	return 0
}

// Bound derives a cancelable child of ctx limited by the stage budget.
// A parent deadline that is sooner still wins
func (t Timeouts) Bound(ctx context.Context, s Stage) (context.Context, context.CancelFunc) {
	if d := t.budget(s); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
