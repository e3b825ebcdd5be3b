// Package engine implements validation reads over promoted parquet partitions
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"visawh/internal/adapters/parquetfs"
	perr "visawh/internal/platform/errors"
	emprepo "visawh/internal/services/employer/repo"
	facts "visawh/internal/services/facts/domain"
	"visawh/internal/services/validate/domain"
)

const sampleSize = 5

// Parquet reads tables with typed parquet-go row readers
type Parquet struct {
	mu   sync.Mutex
	dims map[string]map[string]struct{}
}

// NewParquet returns the default engine
func NewParquet() *Parquet { return &Parquet{dims: map[string]map[string]struct{}{}} }

// Name implements domain.Engine
func (p *Parquet) Name() string { return "parquet" }

// Close implements domain.Engine
func (p *Parquet) Close() error { return nil }

type accessors[T any] struct {
	key      func(T) string
	fields   map[string]func(T) bool
	employer func(T) string
}

func present(s string) bool { return s != "" }

var cutoffRows = accessors[facts.Cutoff]{
	key: func(r facts.Cutoff) string {
		return fmt.Sprintf("%d|%d|%s|%s|%s", r.BulletinYear, r.BulletinMonth, r.Category, r.Country, r.Chart)
	},
	fields: map[string]func(facts.Cutoff) bool{
		"status":      func(r facts.Cutoff) bool { return present(r.Status) },
		"cutoff_date": func(r facts.Cutoff) bool { return !r.CutoffDate.IsZero() },
	},
}

var filingRows = accessors[facts.Filing]{
	key: func(r facts.Filing) string { return r.CaseID },
	fields: map[string]func(facts.Filing) bool{
		"employer_id":     func(r facts.Filing) bool { return present(r.EmployerID) },
		"decision_date":   func(r facts.Filing) bool { return !r.DecisionDate.IsZero() },
		"soc_code":        func(r facts.Filing) bool { return present(r.SOCCode) },
		"wage_from":       func(r facts.Filing) bool { return r.WageFrom != nil },
		"prevailing_wage": func(r facts.Filing) bool { return r.PrevailingWage != nil },
		"area_code":       func(r facts.Filing) bool { return present(r.AreaCode) },
		"worksite_state":  func(r facts.Filing) bool { return present(r.WorksiteState) },
	},
	employer: func(r facts.Filing) string { return r.EmployerID },
}

var warnRows = accessors[facts.WarnEvent]{
	key: func(r facts.WarnEvent) string { return r.EventKey },
	fields: map[string]func(facts.WarnEvent) bool{
		"employer_id": func(r facts.WarnEvent) bool { return present(r.EmployerID) },
		"city":        func(r facts.WarnEvent) bool { return present(r.City) },
	},
	employer: func(r facts.WarnEvent) string { return r.EmployerID },
}

var benchmarkRows = accessors[facts.Benchmark]{
	key: func(r facts.Benchmark) string { return fmt.Sprintf("%s|%s|%d", r.SOCCode, r.AreaCode, r.RefYear) },
	fields: map[string]func(facts.Benchmark) bool{
		"p10":    func(r facts.Benchmark) bool { return r.P10 != nil },
		"p25":    func(r facts.Benchmark) bool { return r.P25 != nil },
		"median": func(r facts.Benchmark) bool { return r.Median != nil },
		"p75":    func(r facts.Benchmark) bool { return r.P75 != nil },
		"p90":    func(r facts.Benchmark) bool { return r.P90 != nil },
	},
}

// Table implements domain.Engine
func (p *Parquet) Table(ctx context.Context, root string, spec domain.TableSpec, dimension string) (domain.TableStats, error) {
	var dim map[string]struct{}
	if spec.EmployerFK {
		var err error
		if dim, err = p.dimension(ctx, root, dimension); err != nil {
			return domain.TableStats{Table: spec.Table}, err
		}
	}
	t := parquetfs.NewTable(root, spec.Table)
	switch spec.Table {
	case facts.TableCutoffs:
		return scanStats(ctx, t, spec, cutoffRows, dim)
	case facts.TablePerm, facts.TableLCA:
		return scanStats(ctx, t, spec, filingRows, dim)
	case facts.TableWarn:
		return scanStats(ctx, t, spec, warnRows, dim)
	case facts.TableBenchmarks:
		return scanStats(ctx, t, spec, benchmarkRows, dim)
	}
	return domain.TableStats{Table: spec.Table}, perr.InvalidArgf("no row shape for table %q", spec.Table)
}

func (p *Parquet) dimension(ctx context.Context, root, table string) (map[string]struct{}, error) {
	if table != emprepo.Table {
		return nil, perr.InvalidArgf("unknown dimension %q", table)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ids, ok := p.dims[root]; ok {
		return ids, nil
	}
	ids, err := emprepo.NewDim(root).IDs(ctx)
	if err != nil {
		return nil, err
	}
	p.dims[root] = ids
	return ids, nil
}

func scanStats[T any](ctx context.Context, t parquetfs.Table, spec domain.TableSpec, acc accessors[T], dim map[string]struct{}) (domain.TableStats, error) {
	st := domain.TableStats{Table: spec.Table, NonNull: make(map[string]int, len(spec.Monitored))}
	parts, err := t.Partitions()
	if err != nil {
		return st, err
	}
	st.Files = len(parts)

	seen := map[string]int{}
	err = parquetfs.ScanTable(ctx, t, func(_ string, rows []T) error {
		for _, r := range rows {
			st.Rows++
			seen[acc.key(r)]++
			for _, f := range spec.Monitored {
				if has, ok := acc.fields[f]; ok && has(r) {
					st.NonNull[f]++
				}
			}
			if dim != nil && acc.employer != nil {
				if id := acc.employer(r); id != "" {
					st.EmployerRefs++
					if _, ok := dim[id]; !ok {
						st.EmployerMissing++
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	for k, n := range seen {
		if n > 1 {
			st.DuplicateKeys++
			st.DuplicateSample = append(st.DuplicateSample, k)
		}
	}
	sort.Strings(st.DuplicateSample)
	if len(st.DuplicateSample) > sampleSize {
		st.DuplicateSample = st.DuplicateSample[:sampleSize]
	}
	return st, nil
}

// Monotonicity implements domain.Engine
func (p *Parquet) Monotonicity(ctx context.Context, root, table string) (domain.MonotonicStats, error) {
	var st domain.MonotonicStats
	err := parquetfs.ScanTable(ctx, parquetfs.NewTable(root, table), func(_ string, rows []facts.Benchmark) error {
		for _, r := range rows {
			if !r.Complete() {
				continue
			}
			st.Checked++
			if !r.Monotonic() {
				st.Violations++
				if len(st.Sample) < sampleSize {
					st.Sample = append(st.Sample, benchmarkRows.key(r))
				}
			}
		}
		return nil
	})
	return st, err
}
