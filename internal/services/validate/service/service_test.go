package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	perr "visawh/internal/platform/errors"
	facts "visawh/internal/services/facts/domain"
	"visawh/internal/services/validate/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	stats map[string]domain.TableStats
	errs  map[string]error
	mono  domain.MonotonicStats
}

func (f fakeEngine) Name() string { return "fake" }
func (f fakeEngine) Close() error { return nil }

func (f fakeEngine) Table(_ context.Context, _ string, spec domain.TableSpec, _ string) (domain.TableStats, error) {
	if err := f.errs[spec.Table]; err != nil {
		return domain.TableStats{}, err
	}
	st := f.stats[spec.Table]
	st.Table = spec.Table
	return st, nil
}

func (f fakeEngine) Monotonicity(context.Context, string, string) (domain.MonotonicStats, error) {
	return f.mono, nil
}

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func run(t *testing.T, eng fakeEngine, cfg Config) domain.Report {
	t.Helper()
	s := New(eng, cfg)
	s.now = fixedNow
	r := domain.Report{RunID: "run-1"}
	s.Validate(context.Background(), t.TempDir(), &r)
	return r
}

func TestValidate_CleanTablesAreOK(t *testing.T) {
	eng := fakeEngine{stats: map[string]domain.TableStats{
		facts.TablePerm: {Rows: 10, EmployerRefs: 10, NonNull: map[string]int{
			"employer_id": 10, "decision_date": 10, "soc_code": 9, "wage_from": 8,
		}},
	}}
	r := run(t, eng, Config{RefWarn: 1})

	assert.Equal(t, domain.StatusOK, r.Status)
	assert.Equal(t, "fake", r.Engine)
	assert.Equal(t, fixedNow(), r.GeneratedAt)
	assert.Len(t, r.Tables, 5)
	assert.Len(t, r.Referential, 3)
	require.Len(t, r.Monotonicity, 1)
	assert.Empty(t, r.Findings)
}

func TestValidate_DuplicateKeysFail(t *testing.T) {
	eng := fakeEngine{stats: map[string]domain.TableStats{
		facts.TableLCA: {Rows: 4, DuplicateKeys: 1, DuplicateSample: []string{"I-200-1"}},
	}}
	r := run(t, eng, Config{})

	assert.True(t, r.Failed())
	require.NotEmpty(t, r.Findings)
	assert.Equal(t, perr.ErrorCodeDuplicatePrimaryKey, r.Findings[0].Code)
	assert.Equal(t, facts.TableLCA, r.Findings[0].Table)
}

func TestValidate_ReferentialThresholds(t *testing.T) {
	stats := map[string]domain.TableStats{
		facts.TableWarn: {Rows: 100, EmployerRefs: 100, EmployerMissing: 10, NonNull: map[string]int{"employer_id": 100, "city": 50}},
	}

	r := run(t, fakeEngine{stats: stats}, Config{RefWarn: 1, RefFail: 0})
	assert.Equal(t, domain.StatusWarn, r.Status)
	var warn domain.Referential
	for _, ref := range r.Referential {
		if ref.Table == facts.TableWarn {
			warn = ref
		}
	}
	assert.InDelta(t, 0.9, warn.Coverage, 1e-9)
	assert.Equal(t, domain.StatusWarn, warn.Status)
	assert.Equal(t, perr.ErrorCodeReferentialGap, r.Findings[0].Code)

	r = run(t, fakeEngine{stats: stats}, Config{RefWarn: 1, RefFail: 0.95})
	assert.Equal(t, domain.StatusFail, r.Status)
}

func TestValidate_CoverageWarnOrBlock(t *testing.T) {
	stats := map[string]domain.TableStats{
		facts.TableBenchmarks: {Rows: 10, NonNull: map[string]int{"median": 2}},
	}

	r := run(t, fakeEngine{stats: stats}, Config{})
	assert.Equal(t, domain.StatusWarn, r.Status)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, perr.ErrorCodeCoverageBelowThreshold, r.Findings[0].Code)
	assert.Equal(t, "median", r.Findings[0].Field)

	r = run(t, fakeEngine{stats: stats}, Config{CoverageBlocking: true})
	assert.Equal(t, domain.StatusFail, r.Status)
}

func TestValidate_EmptyTablesHaveNoCoverageFindings(t *testing.T) {
	r := run(t, fakeEngine{}, Config{RefWarn: 1, RefFail: 1})
	assert.Equal(t, domain.StatusOK, r.Status)
	for _, c := range r.Coverage {
		assert.Zero(t, c.Rows)
	}
}

func TestValidate_MonotonicityFails(t *testing.T) {
	eng := fakeEngine{mono: domain.MonotonicStats{Checked: 3, Violations: 1, Sample: []string{"15-1252|0041860|2023"}}}
	r := run(t, eng, Config{})
	assert.Equal(t, domain.StatusFail, r.Status)
	assert.True(t, r.Failed())
	assert.Equal(t, 1, r.Monotonicity[0].Violations)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, "percentiles", r.Findings[0].Field)
	assert.Equal(t, facts.TableBenchmarks, r.Findings[0].Table)
}

func TestValidate_EngineErrorStillReports(t *testing.T) {
	eng := fakeEngine{errs: map[string]error{facts.TablePerm: perr.IOf("disk gone")}}
	r := run(t, eng, Config{})
	assert.True(t, r.Failed())
	assert.Len(t, r.Tables, 4)
	assert.Equal(t, perr.ErrorCodeIO, r.Findings[0].Code)
}

func TestParseCoverage(t *testing.T) {
	cov, err := ParseCoverage([]string{"fact_lca.soc_code=0.95", "fact_perm.job_title=0.1"})
	require.NoError(t, err)
	assert.Equal(t, 0.95, cov["fact_lca.soc_code"])
	assert.Equal(t, 0.1, cov["fact_perm.job_title"])
	assert.Equal(t, 1.0, cov["fact_perm.employer_id"])

	for _, bad := range []string{"soc_code=0.5", "fact_lca.soc_code", "fact_lca.soc_code=2", "fact_lca.soc_code=x"} {
		_, err := ParseCoverage([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestSpecs_MonitoredSorted(t *testing.T) {
	specs := Specs(DefaultCoverage())
	require.Len(t, specs, 5)
	assert.Equal(t, facts.TableLCA, specs[2].Table)
	assert.Equal(t, []string{"area_code", "decision_date", "employer_id", "prevailing_wage", "soc_code", "wage_from"}, specs[2].Monitored)
	assert.Equal(t, []string{"median"}, specs[4].Monitored)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r := domain.Report{RunID: "r1", Status: domain.StatusWarn}
	r.AddError(domain.StatusFail, "fact_perm", errors.New("boom"))
	require.NoError(t, WriteReport(path, r))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "fail", back["status"])
	findings := back["findings"].([]any)
	assert.Equal(t, "unknown", findings[0].(map[string]any)["code"])
}
