package service

import (
	"fmt"

	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/facts/domain"
)

func benchmarkOf(in domain.Input) (domain.Benchmark, error) {
	rec := in.Rec
	soc := SOC(rec.Text("soc_code"))
	if soc == "" {
		return domain.Benchmark{}, perr.RecordParsef("soc_code", "bad occupation code %q", rec.Text("soc_code"))
	}
	area := AreaCode(rec.Text("area_code"))
	if area == "" {
		return domain.Benchmark{}, perr.RecordParsef("area_code", "empty area code")
	}
	b := domain.Benchmark{
		SOCCode:    soc,
		AreaCode:   area,
		RefYear:    int32(rec.Period.Year),
		P10:        numPtr(rec, "p10"),
		P25:        numPtr(rec, "p25"),
		Median:     numPtr(rec, "median"),
		P75:        numPtr(rec, "p75"),
		P90:        numPtr(rec, "p90"),
		SourceFile: rec.SourceFile,
		SourceRow:  int32(rec.Row),
	}
	if !b.Monotonic() {
		return domain.Benchmark{}, perr.RecordParsef("percentiles",
			"percentiles decrease: p10=%g p25=%g median=%g p75=%g p90=%g", *b.P10, *b.P25, *b.Median, *b.P75, *b.P90)
	}
	return b, nil
}

func benchmarkKey(b domain.Benchmark) string {
	return fmt.Sprintf("%s|%s|%04d", b.SOCCode, b.AreaCode, b.RefYear)
}

func refPart(b domain.Benchmark) string { return fmt.Sprintf("ref_year=%04d", b.RefYear) }

// BuildBenchmarks builds fact_salary_benchmarks. Percentiles are written as published;
// a complete row whose percentiles decrease is rejected rather than corrected
func BuildBenchmarks(ins []domain.Input, p Precedence) Output {
	out := Output{Domain: domain.DomainBenchmarks, Table: domain.TableBenchmarks}
	cands := make([]domain.Candidate[domain.Benchmark], 0, len(ins))

	for _, in := range ins {
		b, err := benchmarkOf(in)
		if err != nil {
			rec := in.Rec
			out.Rejects = append(out.Rejects, sink.RejectOf(rec.Domain, rec.Period.String(), rec.SourceFile, rec.Row, err))
			continue
		}
		cands = append(cands, domain.Candidate[domain.Benchmark]{Key: benchmarkKey(b), Meta: metaOf(in.Rec), Row: b})
	}

	winners, conflicts := Dedup(domain.TableBenchmarks, cands, p)
	out.Conflicts = conflicts
	out.Rows = len(winners)
	out.Partitions = partitionsOf(domain.TableBenchmarks, winners, refPart)
	return out
}
