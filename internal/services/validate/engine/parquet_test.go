package engine

import (
	"context"
	"testing"

	"visawh/internal/adapters/parquetfs"
	empdom "visawh/internal/services/employer/domain"
	emprepo "visawh/internal/services/employer/repo"
	facts "visawh/internal/services/facts/domain"
	"visawh/internal/services/validate/domain"
)

func f64(v float64) *float64 { return &v }

// seed writes a small version tree: one dangling employer reference, one blank
// employer id, one duplicate case id across partitions, one complete benchmark
// with decreasing percentiles and one partial benchmark that is not held to the ordering
func seed(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	if _, err := emprepo.NewDim(root).Write(ctx, []empdom.Employer{
		{EmployerID: "e1", CanonicalName: "Acme", NormalizedKey: "acme"},
	}); err != nil {
		t.Fatalf("dim: %v", err)
	}

	perm := parquetfs.NewTable(root, facts.TablePerm)
	if _, err := parquetfs.WritePartition(ctx, perm, "fiscal_year=2023", []facts.Filing{
		{CaseID: "A-1", FiscalYear: 2023, EmployerID: "e1", SOCCode: "15-1252"},
		{CaseID: "A-2", FiscalYear: 2023, EmployerID: "e9"},
		{CaseID: "A-3", FiscalYear: 2023},
	}); err != nil {
		t.Fatalf("perm 2023: %v", err)
	}
	if _, err := parquetfs.WritePartition(ctx, perm, "fiscal_year=2024", []facts.Filing{
		{CaseID: "A-2", FiscalYear: 2024, EmployerID: "e1", SOCCode: "15-1252", WageFrom: f64(100000)},
	}); err != nil {
		t.Fatalf("perm 2024: %v", err)
	}

	bench := parquetfs.NewTable(root, facts.TableBenchmarks)
	if _, err := parquetfs.WritePartition(ctx, bench, "ref_year=2023", []facts.Benchmark{
		{SOCCode: "15-1252", AreaCode: "0041860", RefYear: 2023, P10: f64(90), P25: f64(100), Median: f64(150), P75: f64(160), P90: f64(80)},
		{SOCCode: "15-1253", AreaCode: "0041860", RefYear: 2023, P10: f64(50), P25: f64(60), Median: f64(90), P75: f64(150), P90: f64(200)},
		{SOCCode: "15-1254", AreaCode: "0041860", RefYear: 2023, P10: f64(500), P90: f64(100)},
	}); err != nil {
		t.Fatalf("bench: %v", err)
	}
	return root
}

var permSpec = domain.TableSpec{
	Table:      facts.TablePerm,
	Key:        []string{"case_id"},
	Monitored:  []string{"employer_id", "soc_code", "wage_from"},
	EmployerFK: true,
}

func checkEngine(t *testing.T, e domain.Engine, root string) {
	t.Helper()
	ctx := context.Background()

	st, err := e.Table(ctx, root, permSpec, emprepo.Table)
	if err != nil {
		t.Fatalf("%s table: %v", e.Name(), err)
	}
	if st.Files != 2 || st.Rows != 4 {
		t.Fatalf("%s files/rows = %d/%d", e.Name(), st.Files, st.Rows)
	}
	if st.DuplicateKeys != 1 || len(st.DuplicateSample) != 1 || st.DuplicateSample[0] != "A-2" {
		t.Fatalf("%s duplicates = %d %v", e.Name(), st.DuplicateKeys, st.DuplicateSample)
	}
	if st.NonNull["employer_id"] != 3 || st.NonNull["soc_code"] != 2 || st.NonNull["wage_from"] != 1 {
		t.Fatalf("%s non-null = %v", e.Name(), st.NonNull)
	}
	if st.EmployerRefs != 3 || st.EmployerMissing != 1 {
		t.Fatalf("%s refs = %d missing = %d", e.Name(), st.EmployerRefs, st.EmployerMissing)
	}

	mono, err := e.Monotonicity(ctx, root, facts.TableBenchmarks)
	if err != nil {
		t.Fatalf("%s monotonicity: %v", e.Name(), err)
	}
	if mono.Checked != 2 || mono.Violations != 1 || len(mono.Sample) != 1 || mono.Sample[0] != "15-1252|0041860|2023" {
		t.Fatalf("%s monotonicity = %+v", e.Name(), mono)
	}

	empty, err := e.Table(ctx, root, domain.TableSpec{Table: facts.TableWarn, Key: []string{"event_key"}, EmployerFK: true}, emprepo.Table)
	if err != nil {
		t.Fatalf("%s missing table: %v", e.Name(), err)
	}
	if empty.Rows != 0 || empty.Files != 0 {
		t.Fatalf("%s missing table = %+v", e.Name(), empty)
	}
}

func TestParquet_Checks(t *testing.T) {
	e := NewParquet()
	defer e.Close()
	checkEngine(t, e, seed(t))
}

func TestParquet_UnknownTable(t *testing.T) {
	if _, err := NewParquet().Table(context.Background(), t.TempDir(), domain.TableSpec{Table: "fact_visas"}, ""); err == nil {
		t.Fatal("expected error for unknown table")
	}
}
