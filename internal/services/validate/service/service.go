// Package service validates promoted tables and assembles the build report
package service

import (
	"context"
	"encoding/json"
	"time"

	"visawh/internal/adapters/parquetfs"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	emprepo "visawh/internal/services/employer/repo"
	facts "visawh/internal/services/facts/domain"
	"visawh/internal/services/validate/domain"
)

// Config holds the thresholds
type Config struct {
	RefWarn          float64            // employer coverage below this warns
	RefFail          float64            // and below this fails
	CoverageMin      map[string]float64 // "table.field" minimum non-null share
	CoverageBlocking bool
}

var defaultCoverage = []struct {
	table, field string
	min          float64
}{
	{facts.TablePerm, "employer_id", 1},
	{facts.TablePerm, "decision_date", 0.9},
	{facts.TablePerm, "soc_code", 0.8},
	{facts.TablePerm, "wage_from", 0.8},
	{facts.TableLCA, "employer_id", 1},
	{facts.TableLCA, "decision_date", 0.9},
	{facts.TableLCA, "soc_code", 0.8},
	{facts.TableLCA, "wage_from", 0.8},
	{facts.TableLCA, "prevailing_wage", 0.5},
	{facts.TableLCA, "area_code", 0.5},
	{facts.TableWarn, "employer_id", 1},
	{facts.TableWarn, "city", 0},
	{facts.TableCutoffs, "status", 1},
	{facts.TableBenchmarks, "median", 0.5},
}

// DefaultCoverage is the monitored field set keyed "table.field" with its default minimums
func DefaultCoverage() map[string]float64 {
	out := make(map[string]float64, len(defaultCoverage))
	for _, c := range defaultCoverage {
		out[c.table+"."+c.field] = c.min
	}
	return out
}

// Specs lists the tables to check in report order
func Specs(coverage map[string]float64) []domain.TableSpec {
	specs := []domain.TableSpec{
		{Table: facts.TableCutoffs, Key: []string{"bulletin_year", "bulletin_month", "category", "country", "chart"}},
		{Table: facts.TablePerm, Key: []string{"case_id"}, EmployerFK: true},
		{Table: facts.TableLCA, Key: []string{"case_id"}, EmployerFK: true},
		{Table: facts.TableWarn, Key: []string{"event_key"}, EmployerFK: true},
		{Table: facts.TableBenchmarks, Key: []string{"soc_code", "area_code", "ref_year"}},
	}
	for i := range specs {
		specs[i].Monitored = monitored(specs[i].Table, coverage)
	}
	return specs
}

// Service runs the checks with one engine
type Service struct {
	engine domain.Engine
	cfg    Config
	now    func() time.Time
}

// New returns a validator; a nil CoverageMin uses DefaultCoverage
func New(engine domain.Engine, cfg Config) *Service {
	if cfg.CoverageMin == nil {
		cfg.CoverageMin = DefaultCoverage()
	}
	return &Service{engine: engine, cfg: cfg, now: time.Now}
}

// Validate reads the tables under root and fills r; engine failures become findings
// The report is always complete enough to write, whatever the outcome
func (s *Service) Validate(ctx context.Context, root string, r *domain.Report) {
	log := logger.C(ctx)
	r.Engine = s.engine.Name()
	if r.Status == "" {
		r.Status = domain.StatusOK
	}

	for _, spec := range Specs(s.cfg.CoverageMin) {
		st, err := s.engine.Table(ctx, root, spec, emprepo.Table)
		if err != nil {
			log.Error().Err(err).Str("table", spec.Table).Msg("validate: table read failed")
			r.AddError(domain.StatusFail, spec.Table, err)
			continue
		}
		s.checkTable(r, spec, st)
	}

	mono, err := s.engine.Monotonicity(ctx, root, facts.TableBenchmarks)
	if err != nil {
		r.AddError(domain.StatusFail, facts.TableBenchmarks, err)
	} else {
		r.Monotonicity = append(r.Monotonicity, domain.Monotonicity{
			Table:      facts.TableBenchmarks,
			Checked:    mono.Checked,
			Violations: mono.Violations,
			Sample:     mono.Sample,
		})
		if mono.Violations > 0 {
			r.AddError(domain.StatusFail, facts.TableBenchmarks, perr.WithField(
				perr.Newf(perr.ErrorCodeValidation, "%d of %d complete rows have decreasing percentiles", mono.Violations, mono.Checked),
				"percentiles"))
		}
	}

	r.GeneratedAt = s.now().UTC()
	log.Info().
		Str("status", string(r.Status)).
		Int("findings", len(r.Findings)).
		Str("engine", r.Engine).
		Msg("validation finished")
}

func (s *Service) checkTable(r *domain.Report, spec domain.TableSpec, st domain.TableStats) {
	r.Tables = append(r.Tables, domain.TableReport{
		Table:           spec.Table,
		Files:           st.Files,
		Rows:            st.Rows,
		DuplicateKeys:   st.DuplicateKeys,
		DuplicateSample: st.DuplicateSample,
	})
	if st.DuplicateKeys > 0 {
		r.AddError(domain.StatusFail, spec.Table,
			perr.DuplicatePrimaryKeyf("%s has %d duplicated primary keys", spec.Table, st.DuplicateKeys))
	}

	if spec.EmployerFK {
		ref := domain.Referential{Table: spec.Table, Checked: st.EmployerRefs, Missing: st.EmployerMissing, Coverage: 1, Status: domain.StatusOK}
		if st.EmployerRefs > 0 {
			ref.Coverage = float64(st.EmployerRefs-st.EmployerMissing) / float64(st.EmployerRefs)
		}
		switch {
		case ref.Coverage < s.cfg.RefFail:
			ref.Status = domain.StatusFail
		case ref.Coverage < s.cfg.RefWarn:
			ref.Status = domain.StatusWarn
		}
		r.Referential = append(r.Referential, ref)
		if ref.Status != domain.StatusOK {
			r.AddError(ref.Status, spec.Table, perr.ReferentialGapf(
				"%s: %d of %d employer ids missing from %s (coverage %.4f)",
				spec.Table, ref.Missing, ref.Checked, emprepo.Table, ref.Coverage))
		}
	}

	for _, f := range spec.Monitored {
		c := domain.Coverage{
			Table:   spec.Table,
			Field:   f,
			Rows:    st.Rows,
			NonNull: st.NonNull[f],
			Min:     s.cfg.CoverageMin[spec.Table+"."+f],
			Status:  domain.StatusOK,
		}
		if c.Rows > 0 {
			c.Coverage = float64(c.NonNull) / float64(c.Rows)
			if c.Coverage < c.Min {
				c.Status = domain.StatusWarn
				if s.cfg.CoverageBlocking {
					c.Status = domain.StatusFail
				}
			}
		}
		r.Coverage = append(r.Coverage, c)
		if c.Status != domain.StatusOK {
			r.AddError(c.Status, spec.Table, perr.CoverageBelowf(f,
				"%s.%s coverage %.4f below %.4f", spec.Table, f, c.Coverage, c.Min))
		}
	}
}

// WriteReport writes the report as indented JSON, atomically
func WriteReport(path string, r domain.Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "encode report")
	}
	return parquetfs.WriteFileAtomic(path, append(b, '\n'))
}
