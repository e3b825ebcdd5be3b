// Package domain defines the validation report and the read engine port
package domain

import (
	"context"
	"time"

	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	recdom "visawh/internal/services/reconcile/domain"
)

// Status is the overall or per-check outcome
type Status string

// Statuses, ordered by severity
const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

func (s Status) rank() int {
	switch s {
	case StatusWarn:
		return 1
	case StatusFail:
		return 2
	}
	return 0
}

// Worse returns the more severe of s and o
func (s Status) Worse(o Status) Status {
	if o.rank() > s.rank() {
		return o
	}
	return s
}

// TableSpec tells an engine what to read from one table
type TableSpec struct {
	Table      string
	Key        []string // primary key columns
	Monitored  []string // coverage fields
	EmployerFK bool     // employer_id must exist in the dimension
}

// TableStats is what an engine measured for one table
type TableStats struct {
	Table           string
	Files           int
	Rows            int
	DuplicateKeys   int
	DuplicateSample []string
	NonNull         map[string]int
	EmployerRefs    int // rows with a non-empty employer_id
	EmployerMissing int // of those, ids absent from the dimension
}

// MonotonicStats counts benchmark rows with all five percentiles present, and those that decrease
type MonotonicStats struct {
	Checked    int
	Violations int
	Sample     []string
}

// Engine reads promoted partitions under a version root
type Engine interface {
	Name() string
	Table(ctx context.Context, root string, spec TableSpec, dimension string) (TableStats, error)
	Monotonicity(ctx context.Context, root, table string) (MonotonicStats, error)
	Close() error
}

// TableReport is the integrity summary of one table
type TableReport struct {
	Table           string   `json:"table"`
	Files           int      `json:"files"`
	Rows            int      `json:"rows"`
	DuplicateKeys   int      `json:"duplicate_keys"`
	DuplicateSample []string `json:"duplicate_sample,omitempty"`
}

// Referential is employer_id completeness for one fact table
type Referential struct {
	Table    string  `json:"table"`
	Checked  int     `json:"checked"`
	Missing  int     `json:"missing"`
	Coverage float64 `json:"coverage"`
	Status   Status  `json:"status"`
}

// Monotonicity summarizes percentile ordering for one table
type Monotonicity struct {
	Table      string   `json:"table"`
	Checked    int      `json:"checked"`
	Violations int      `json:"violations"`
	Sample     []string `json:"sample,omitempty"`
}

// Coverage is the non-null share of one monitored field
type Coverage struct {
	Table    string  `json:"table"`
	Field    string  `json:"field"`
	Rows     int     `json:"rows"`
	NonNull  int     `json:"non_null"`
	Coverage float64 `json:"coverage"`
	Min      float64 `json:"min"`
	Status   Status  `json:"status"`
}

// Ingest summarizes what the build dropped or overrode before writing
type Ingest struct {
	Records    int                    `json:"records"`
	Unmapped   []recdom.UnmappedCount `json:"unmapped"`
	Rejects    map[string]int         `json:"rejects"`   // by error code
	Conflicts  map[string]int         `json:"conflicts"` // losing rows by table
	Drift      []recdom.DriftEvent    `json:"drift"`
	Employers  int                    `json:"employers"`
	NearDupes  int                    `json:"near_duplicate_employers"`
	Partitions map[string]int         `json:"partitions"` // written partitions by table
}

// Finding is one notable outcome, in the order it was found
type Finding struct {
	Severity Status         `json:"severity"`
	Code     perr.ErrorCode `json:"code"`
	Table    string         `json:"table,omitempty"`
	Field    string         `json:"field,omitempty"`
	Message  string         `json:"message"`
}

// Report is the machine readable outcome of one build
type Report struct {
	RunID        string         `json:"run_id"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Engine       string         `json:"engine"`
	Status       Status         `json:"status"`
	Promoted     bool           `json:"promoted"`
	Tables       []TableReport  `json:"tables"`
	Referential  []Referential  `json:"referential"`
	Monotonicity []Monotonicity `json:"monotonicity"`
	Coverage     []Coverage     `json:"coverage"`
	Ingest       Ingest         `json:"ingest"`
	Findings     []Finding      `json:"findings"`
}

// Add appends a finding and raises the report status to its severity
func (r *Report) Add(f Finding) {
	r.Findings = append(r.Findings, f)
	r.Status = r.Status.Worse(f.Severity)
}

// AddError records err as a finding with the given severity
func (r *Report) AddError(sev Status, table string, err error) {
	w := perr.WireFrom(err)
	r.Add(Finding{Severity: sev, Code: w.Code, Table: table, Field: w.Field, Message: err.Error()})
}

// RejectCounts groups rejects by error code
func RejectCounts(rs []sink.Reject) map[string]int {
	out := map[string]int{}
	for _, r := range rs {
		out[r.Code.String()]++
	}
	return out
}

// Failed reports whether the report blocks promotion
func (r Report) Failed() bool { return r.Status == StatusFail }
