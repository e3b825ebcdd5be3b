package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"visawh/internal/adapters/parquetfs"
	"visawh/internal/adapters/source"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/facts/domain"
	recdom "visawh/internal/services/reconcile/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) recdom.Value { return recdom.Value{Kind: "text", Text: s} }

func num(f float64) recdom.Value { return recdom.Value{Kind: "money", Num: f} }

func date(y int, m time.Month, d int) recdom.Value {
	return recdom.Value{Kind: "date", Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func cutoffAt(status string, t time.Time) recdom.Value {
	return recdom.Value{Kind: "cutoff", Cutoff: recdom.Cutoff{Status: status, Date: t}}
}

func rec(dom string, p source.Period, src string, row int, fields map[string]recdom.Value) recdom.Record {
	return recdom.Record{Domain: dom, Period: p, SourceFile: src, Row: row, Fields: fields}
}

func TestCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1st", "EB1"},
		{"2nd", "EB2"},
		{"3rd", "EB3"},
		{"Other Workers", "EB3-OW"},
		{"4th", "EB4"},
		{"Certain Religious Workers", "EB4-RW"},
		{"5th Unreserved (including C5, T5, I5, R5)", "EB5-UNRESERVED"},
		{"5th Set Aside: Rural (20%)", "EB5-RURAL"},
		{"5th Set Aside: High Unemployment (10%)", "EB5-HIGH-UNEMPLOYMENT"},
		{"5th Set Aside: Infrastructure (2%)", "EB5-INFRASTRUCTURE"},
		{"5th", "EB5"},
		{"F2A", "F2A"},
		{"f 2b", "F2B"},
	}
	for _, tc := range tests {
		got, ok := Category(tc.in)
		assert.True(t, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, ok := Category("Diversity")
	assert.False(t, ok)
	_, ok = Category("  ")
	assert.False(t, ok)
}

func TestChart(t *testing.T) {
	c, err := Chart("Dates for Filing", "visa_bulletin_2024_01.csv")
	require.NoError(t, err)
	assert.Equal(t, ChartDatesForFiling, c)

	c, err = Chart("", "visabulletin_January2024_DFF.csv.gz")
	require.NoError(t, err)
	assert.Equal(t, ChartDatesForFiling, c)

	c, err = Chart("", "visabulletin_January2024_FAD.csv")
	require.NoError(t, err)
	assert.Equal(t, ChartFinalAction, c)

	c, err = Chart("", "visabulletin_January2024.csv")
	require.NoError(t, err)
	assert.Equal(t, ChartFinalAction, c)

	_, err = Chart("C", "x.csv")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeRecordParse))
}

func TestCodeNormalizers(t *testing.T) {
	assert.Equal(t, "15-1132", SOC("15-1132.00"))
	assert.Equal(t, "15-1132", SOC("151132"))
	assert.Equal(t, "", SOC("15-11"))
	assert.Equal(t, "0012345", AreaCode("12345"))
	assert.Equal(t, "0041860", AreaCode("41860.0"))
	assert.Equal(t, "NE123", AreaCode("ne123"))
	assert.Equal(t, "", AreaCode(" "))
	assert.Equal(t, "541511", NAICS("541511.0"))
	assert.Equal(t, "H-1B", VisaClass("h1b"))
	assert.Equal(t, "H-1B1 SINGAPORE", VisaClass("H-1B1 Singapore"))
	assert.Equal(t, "E-2", VisaClass("e-2"))
}

func TestBuildCutoffs_ExplodesCountries(t *testing.T) {
	jan := source.Period{Year: 2024, Month: 1}
	d := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	ins := []domain.Input{
		{
			SourceName: "visabulletin_January2024.csv",
			Rec: rec("cutoffs", jan, "visa_bulletin/visabulletin_January2024.csv", 1, map[string]recdom.Value{
				"category":    text("2nd"),
				"country_row": cutoffAt(recdom.CutoffDate, d),
				"country_ind": cutoffAt(recdom.CutoffUnavailable, time.Time{}),
				"country_mex": cutoffAt(recdom.CutoffCurrent, time.Time{}),
			}),
		},
		{
			SourceName: "visabulletin_January2024.csv",
			Rec: rec("cutoffs", jan, "visa_bulletin/visabulletin_January2024.csv", 2, map[string]recdom.Value{
				"category":    text("Diversity"),
				"country_row": cutoffAt(recdom.CutoffCurrent, time.Time{}),
			}),
		},
		{
			SourceName: "visabulletin_January2024_v2.csv",
			Rec: rec("cutoffs", jan, "visa_bulletin/visabulletin_January2024_v2.csv", 1, map[string]recdom.Value{
				"category":    text("2nd"),
				"country_row": cutoffAt(recdom.CutoffCurrent, time.Time{}),
			}),
		},
	}

	out := BuildCutoffs(ins, DefaultPrecedence(domain.DomainCutoffs))

	require.Len(t, out.Rejects, 1)
	assert.Equal(t, "category", out.Rejects[0].Field)
	assert.Equal(t, 6, out.Skipped)
	assert.Equal(t, 3, out.Rows)
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, "bulletin_year=2024/bulletin_month=01", out.Partitions[0].Key)

	// the re-issued extract sorts last and wins the ROW cell
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "2024|01|EB2|ROW|FAD", out.Conflicts[0].Key)
	assert.Equal(t, "visa_bulletin/visabulletin_January2024_v2.csv", out.Conflicts[0].WinnerSource)

	root := t.TempDir()
	w, err := out.Partitions[0].Write(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, w.Rows)

	rows, err := parquetfs.ReadTable[domain.Cutoff](context.Background(), parquetfs.NewTable(root, domain.TableCutoffs))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	byCountry := map[string]domain.Cutoff{}
	for _, r := range rows {
		byCountry[r.Country] = r
	}
	assert.Equal(t, "C", byCountry["ROW"].Status)
	assert.True(t, byCountry["ROW"].CutoffDate.IsZero())
	assert.Equal(t, "U", byCountry["IND"].Status)
	assert.Equal(t, "C", byCountry["MEX"].Status)
}

func TestBuildCutoffs_MonthlessPeriodRejected(t *testing.T) {
	out := BuildCutoffs([]domain.Input{{
		Rec: rec("cutoffs", source.Period{Year: 2024}, "visa_bulletin/x.csv", 1, map[string]recdom.Value{
			"category":    text("1st"),
			"country_row": cutoffAt(recdom.CutoffCurrent, time.Time{}),
		}),
	}}, nil)
	require.Len(t, out.Rejects, 1)
	assert.Equal(t, 0, out.Rows)
}

func TestBuildCutoffs_RetrogressionKeptVerbatim(t *testing.T) {
	jan := source.Period{Year: 2024, Month: 1}
	feb := source.Period{Year: 2024, Month: 2}
	back := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	ins := []domain.Input{
		{
			SourceName: "visabulletin_January2024.csv",
			Rec: rec("cutoffs", jan, "visa_bulletin/visabulletin_January2024.csv", 1, map[string]recdom.Value{
				"category":    text("2nd"),
				"country_row": cutoffAt(recdom.CutoffCurrent, time.Time{}),
			}),
		},
		{
			SourceName: "visabulletin_February2024.csv",
			Rec: rec("cutoffs", feb, "visa_bulletin/visabulletin_February2024.csv", 1, map[string]recdom.Value{
				"category":    text("2nd"),
				"country_row": cutoffAt(recdom.CutoffDate, back),
			}),
		},
	}

	out := BuildCutoffs(ins, DefaultPrecedence(domain.DomainCutoffs))
	require.Empty(t, out.Rejects)
	require.Empty(t, out.Conflicts)
	assert.Equal(t, 2, out.Rows)
	require.Len(t, out.Partitions, 2)

	root := t.TempDir()
	for _, p := range out.Partitions {
		_, err := p.Write(context.Background(), root)
		require.NoError(t, err)
	}
	rows, err := parquetfs.ReadTable[domain.Cutoff](context.Background(), parquetfs.NewTable(root, domain.TableCutoffs))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byMonth := map[int32]domain.Cutoff{}
	for _, r := range rows {
		byMonth[r.BulletinMonth] = r
	}
	assert.Equal(t, recdom.CutoffCurrent, byMonth[1].Status)
	assert.True(t, byMonth[1].CutoffDate.IsZero())
	assert.Equal(t, recdom.CutoffDate, byMonth[2].Status)
	assert.True(t, back.Equal(byMonth[2].CutoffDate), "later bulletin may move the date back")
}

func TestBuildCutoffs_PrimaryKeyUniqueUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(20241019))
	cats := []string{"1st", "2nd", "3rd", "Other Workers", "4th", "F2A", "f 2b", "Diversity"}
	charts := []string{"", "FAD", "DFF", "B", "Final Action Dates"}
	files := []string{
		"visabulletin_%s2024.csv",
		"visabulletin_%s2024_v2.csv",
		"visabulletin_%s2024_DFF.csv",
	}
	months := []string{"January", "February", "March"}
	statuses := []string{recdom.CutoffCurrent, recdom.CutoffUnavailable, recdom.CutoffDate}

	for round := 0; round < 25; round++ {
		var ins []domain.Input
		want := map[string]bool{}
		for n := rng.Intn(60) + 1; n > 0; n-- {
			m := rng.Intn(len(months))
			name := fmt.Sprintf(files[rng.Intn(len(files))], months[m])
			fields := map[string]recdom.Value{"category": text(cats[rng.Intn(len(cats))])}
			if c := charts[rng.Intn(len(charts))]; c != "" {
				fields["chart"] = text(c)
			}
			for _, cc := range countryColumns {
				if rng.Intn(3) == 0 {
					continue
				}
				st := statuses[rng.Intn(len(statuses))]
				var d time.Time
				if st == recdom.CutoffDate {
					d = time.Date(2015+rng.Intn(8), time.Month(rng.Intn(12)+1), 1, 0, 0, 0, 0, time.UTC)
				}
				fields[cc.field] = cutoffAt(st, d)
			}
			in := domain.Input{
				SourceName: name,
				Rec:        rec("cutoffs", source.Period{Year: 2024, Month: m + 1}, "visa_bulletin/"+name, rng.Intn(40)+1, fields),
			}
			ins = append(ins, in)
			// the same extract mirrored twice
			if rng.Intn(5) == 0 {
				ins = append(ins, in)
			}

			cat, ok := Category(fields["category"].Text)
			chart, err := Chart(fields["chart"].Text, name)
			if !ok || err != nil {
				continue
			}
			for _, cc := range countryColumns {
				if _, ok := fields[cc.field]; ok {
					want[fmt.Sprintf("%04d|%02d|%s|%s|%s", 2024, m+1, cat, cc.code, chart)] = true
				}
			}
		}
		rng.Shuffle(len(ins), func(i, j int) { ins[i], ins[j] = ins[j], ins[i] })

		out := BuildCutoffs(ins, DefaultPrecedence(domain.DomainCutoffs))
		require.Equal(t, len(want), out.Rows, "round %d", round)

		seen := map[string]bool{}
		total := 0
		for _, p := range out.Partitions {
			total += p.Rows
			for _, k := range p.keys {
				require.False(t, seen[k], "round %d: key %s emitted twice", round, k)
				require.True(t, want[k], "round %d: unexpected key %s", round, k)
				seen[k] = true
			}
		}
		assert.Equal(t, out.Rows, total, "round %d", round)

		type loss struct{ key, source string }
		losses := map[loss]bool{}
		for _, c := range out.Conflicts {
			l := loss{c.Key, c.LoserSource}
			require.False(t, losses[l], "round %d: conflict %v reported twice", round, l)
			losses[l] = true
			assert.True(t, seen[c.Key], "round %d: conflict on unwritten key %s", round, c.Key)
		}
	}
}

func filingInput(src string, fy, row int, id string, decided time.Time, extra map[string]recdom.Value) domain.Input {
	f := map[string]recdom.Value{
		"case_id":       text(id),
		"case_status":   text("CERTIFIED"),
		"employer_name": text("Acme Widgets Inc"),
	}
	if !decided.IsZero() {
		f["decision_date"] = recdom.Value{Kind: "date", Time: decided}
	}
	for k, v := range extra {
		f[k] = v
	}
	return domain.Input{
		Rec:         rec("perm", source.Period{Year: fy}, src, row, f),
		EmployerID:  "acme-widgets-id",
		EmployerKey: "acme widgets",
	}
}

func TestBuildFilings_DedupAcrossYears(t *testing.T) {
	d1 := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	ins := []domain.Input{
		filingInput("perm/PERM_FY2023.csv", 2023, 1, "a-100", d1, map[string]recdom.Value{"soc_code": text("15-1252.00")}),
		filingInput("perm/PERM_FY2024.csv", 2024, 9, "A-100", d2, map[string]recdom.Value{"wage_from": num(120000)}),
		filingInput("perm/PERM_FY2024.csv", 2024, 10, "A-200", time.Time{}, map[string]recdom.Value{"area_code": text("41860")}),
		filingInput("perm/PERM_FY2024.csv", 2024, 11, " ", d2, nil),
	}
	bad := filingInput("perm/PERM_FY2024.csv", 2024, 12, "A-300", d2, nil)
	bad.EmployerID = ""
	bad.EmployerErr = perr.UnresolvableEmployerf("empty employer name")
	ins = append(ins, bad)

	out := BuildFilings(domain.DomainPerm, ins, DefaultPrecedence(domain.DomainPerm))

	assert.Equal(t, domain.TablePerm, out.Table)
	require.Len(t, out.Rejects, 2)
	codes := []perr.ErrorCode{out.Rejects[0].Code, out.Rejects[1].Code}
	assert.ElementsMatch(t, []perr.ErrorCode{perr.ErrorCodeRecordParse, perr.ErrorCodeUnresolvableEmployer}, codes)

	assert.Equal(t, 2, out.Rows)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "A-100", out.Conflicts[0].Key)
	assert.Equal(t, "perm/PERM_FY2023.csv", out.Conflicts[0].LoserSource)

	// the later decision moved A-100 into FY2024; nothing is left in FY2023
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, "fiscal_year=2024", out.Partitions[0].Key)

	root := t.TempDir()
	_, err := out.Partitions[0].Write(context.Background(), root)
	require.NoError(t, err)
	rows, err := parquetfs.ReadTable[domain.Filing](context.Background(), parquetfs.NewTable(root, domain.TablePerm))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A-100", rows[0].CaseID)
	assert.Equal(t, "certified", rows[0].CaseStatus)
	require.NotNil(t, rows[0].WageFrom)
	assert.InDelta(t, 120000, *rows[0].WageFrom, 0.001)
	assert.Equal(t, "0041860", rows[1].AreaCode)
	assert.Nil(t, rows[1].WageFrom)
}

func TestFilingOf_FiscalYearFallsBackToDecisionDate(t *testing.T) {
	// October decisions belong to the next federal fiscal year
	in := filingInput("perm/perm_extract.csv", 0, 1, "A-500", time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC), nil)
	f, err := filingOf(in)
	require.NoError(t, err)
	assert.Equal(t, int32(2024), f.FiscalYear)

	in = filingInput("perm/perm_extract.csv", 0, 2, "A-501", time.Time{}, nil)
	f, err = filingOf(in)
	require.NoError(t, err)
	assert.Zero(t, f.FiscalYear)
}

func TestPartitionWrite_DuplicateKeyNeverPromoted(t *testing.T) {
	p := partitionsOf("fact_lca", []domain.Candidate[domain.Filing]{
		{Key: "I-1", Row: domain.Filing{CaseID: "I-1", FiscalYear: 2024}},
		{Key: "I-1", Row: domain.Filing{CaseID: "I-1", FiscalYear: 2024}},
	}, fiscalPart)
	require.Len(t, p, 1)

	root := t.TempDir()
	_, err := p[0].Write(context.Background(), root)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeDuplicatePrimaryKey))

	parts, err := parquetfs.NewTable(root, "fact_lca").Partitions()
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestBuildWarn(t *testing.T) {
	p := source.Period{Year: 2024}
	mk := func(row int, city string, n float64) domain.Input {
		return domain.Input{
			Dirs:        []string{"ca"},
			SourceName:  "warn_2024.csv",
			EmployerID:  "e1",
			EmployerKey: "acme widgets",
			Rec: rec("warn", p, "warn/ca/warn_2024.csv", row, map[string]recdom.Value{
				"notice_date":        date(2024, 3, 4),
				"employer_name":      text("ACME Widgets, Inc."),
				"city":               text(city),
				"employees_affected": num(n),
			}),
		}
	}
	ins := []domain.Input{mk(1, "San Jose", 120), mk(2, "san  jose", 80), mk(3, "Fresno", -4)}
	noDate := mk(4, "Fresno", 1)
	delete(noDate.Rec.Fields, "notice_date")
	ins = append(ins, noDate, mk(5, "Oakland", 3e9))

	out := BuildWarn(ins, DefaultPrecedence(domain.DomainWarn))

	require.Len(t, out.Rejects, 2)
	assert.Equal(t, "notice_date", out.Rejects[0].Field)
	assert.Equal(t, "employees_affected", out.Rejects[1].Field)
	assert.Equal(t, perr.ErrorCodeRecordParse, out.Rejects[1].Code)
	assert.Equal(t, 5, out.Rejects[1].Row)
	assert.Equal(t, 2, out.Rows)
	require.Len(t, out.Conflicts, 1, "city is folded before hashing")
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, "notice_year=2024", out.Partitions[0].Key)

	root := t.TempDir()
	_, err := out.Partitions[0].Write(context.Background(), root)
	require.NoError(t, err)
	rows, err := parquetfs.ReadTable[domain.WarnEvent](context.Background(), parquetfs.NewTable(root, domain.TableWarn))
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, "CA", r.State)
		assert.GreaterOrEqual(t, r.EmployeesAffected, int32(0))
		assert.Len(t, r.EventKey, 32)
	}
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, "TX", StateOf("tx", nil, "x.csv"))
	assert.Equal(t, "NY", StateOf("", []string{"2024", "ny"}, "x.csv"))
	assert.Equal(t, "WA", StateOf("", nil, "wa_warn.csv"))
	assert.Equal(t, "", StateOf("Texas", nil, "warn.csv"))
}

func TestBuildBenchmarks(t *testing.T) {
	p := source.Period{Year: 2023}
	ins := []domain.Input{
		{Rec: rec("benchmarks", p, "oews/oes_2023.csv", 1, map[string]recdom.Value{
			"soc_code": text("15-1252"), "area_code": text("41860"),
			"p10": num(90000), "median": num(150000), "p90": num(80000),
		})},
		{Rec: rec("benchmarks", p, "oews/oes_2023.csv", 2, map[string]recdom.Value{
			"soc_code": text("bogus"), "area_code": text("41860"),
		})},
		{Rec: rec("benchmarks", p, "oews/oes_2023.csv", 3, map[string]recdom.Value{
			"soc_code": text("15-1253"), "area_code": text("41860"),
			"p10": num(150000), "p25": num(90000), "median": num(120000), "p75": num(130000), "p90": num(140000),
		})},
	}
	out := BuildBenchmarks(ins, DefaultPrecedence(domain.DomainBenchmarks))
	require.Len(t, out.Rejects, 2)
	assert.Equal(t, "soc_code", out.Rejects[0].Field)
	assert.Equal(t, "percentiles", out.Rejects[1].Field)
	assert.Equal(t, perr.ErrorCodeRecordParse, out.Rejects[1].Code)
	assert.Equal(t, 3, out.Rejects[1].Row)
	require.Len(t, out.Partitions, 1)
	assert.Equal(t, "ref_year=2023", out.Partitions[0].Key)

	root := t.TempDir()
	_, err := out.Partitions[0].Write(context.Background(), root)
	require.NoError(t, err)
	rows, err := parquetfs.ReadTable[domain.Benchmark](context.Background(), parquetfs.NewTable(root, domain.TableBenchmarks))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].P25)
	assert.InDelta(t, 80000, *rows[0].P90, 0.001, "percentiles are not smoothed")
}

func TestService_Build(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	_, err = s.Build(context.Background(), "visas", nil)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeInvalidArgument))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Build(ctx, domain.DomainPerm, nil)
	assert.ErrorIs(t, err, context.Canceled)

	out, err := s.Build(context.Background(), domain.DomainLCA, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TableLCA, out.Table)
	assert.Empty(t, out.Partitions)
}
