package service

import (
	"fmt"
	"strings"
	"unicode"

	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	ptime "visawh/internal/platform/time"
	"visawh/internal/services/facts/domain"
	recdom "visawh/internal/services/reconcile/domain"
)

const unknownStatus = "unknown"

var visaClasses = map[string]string{
	"H1B":           "H-1B",
	"H1B1CHILE":     "H-1B1 CHILE",
	"H1B1SINGAPORE": "H-1B1 SINGAPORE",
	"E3AUSTRALIAN":  "E-3 AUSTRALIAN",
	"E3":            "E-3 AUSTRALIAN",
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripFraction drops a trailing decimal part, as spreadsheets render codes like 541511.0
func stripFraction(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// SOC normalizes an occupation code to XX-XXXX; unrecognized codes are dropped
func SOC(raw string) string {
	d := digitsOf(stripFraction(strings.TrimSpace(raw)))
	if len(d) != 6 {
		return ""
	}
	return d[:2] + "-" + d[2:]
}

// AreaCode zero pads a numeric statistical area code to seven digits
func AreaCode(raw string) string {
	s := stripFraction(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	d := digitsOf(s)
	if d != s || len(d) > 7 {
		return strings.ToUpper(s)
	}
	return strings.Repeat("0", 7-len(d)) + d
}

// NAICS keeps the digits of an industry code
func NAICS(raw string) string { return digitsOf(stripFraction(strings.TrimSpace(raw))) }

// VisaClass canonicalizes common spellings of a visa class
func VisaClass(raw string) string {
	up := strings.ToUpper(strings.TrimSpace(raw))
	compact := strings.NewReplacer("-", "", " ", "", "_", "").Replace(up)
	if c, ok := visaClasses[compact]; ok {
		return c
	}
	return up
}

func numPtr(rec recdom.Record, field string) *float64 {
	if v, ok := rec.Num(field); ok {
		return &v
	}
	return nil
}

func fiscalPart(f domain.Filing) string { return fmt.Sprintf("fiscal_year=%04d", f.FiscalYear) }

// filingOf maps a reconciled perm or lca record to a fact row
func filingOf(in domain.Input) (domain.Filing, error) {
	rec := in.Rec
	id := strings.ToUpper(strings.TrimSpace(rec.Text("case_id")))
	if id == "" {
		return domain.Filing{}, perr.RecordParsef("case_id", "empty case id")
	}
	if in.EmployerErr != nil {
		return domain.Filing{}, in.EmployerErr
	}
	if in.EmployerID == "" {
		return domain.Filing{}, perr.UnresolvableEmployerf("no employer for case %s", id)
	}

	f := domain.Filing{
		CaseID:               id,
		FiscalYear:           int32(rec.Period.Year),
		EmployerID:           in.EmployerID,
		EmployerNameRaw:      rec.Text("employer_name"),
		CaseStatus:           strings.ToLower(rec.Text("case_status")),
		VisaClass:            VisaClass(rec.Text("visa_class")),
		SOCCode:              SOC(rec.Text("soc_code")),
		JobTitle:             rec.Text("job_title"),
		WageFrom:             numPtr(rec, "wage_from"),
		WageTo:               numPtr(rec, "wage_to"),
		PrevailingWage:       numPtr(rec, "prevailing_wage"),
		WorksiteCity:         rec.Text("worksite_city"),
		WorksiteState:        rec.Text("worksite_state"),
		WorksitePostal:       rec.Text("worksite_postal"),
		AreaCode:             AreaCode(rec.Text("area_code")),
		NAICSCode:            NAICS(rec.Text("naics_code")),
		CountryOfCitizenship: rec.Text("country_of_citizenship"),
		SourceFile:           rec.SourceFile,
		SourceRow:            int32(rec.Row),
	}
	if f.CaseStatus == "" {
		f.CaseStatus = unknownStatus
	}
	if d, ok := rec.Date("received_date"); ok {
		f.ReceivedDate = d
	}
	if d, ok := rec.Date("decision_date"); ok {
		f.DecisionDate = d
	}
	if b, ok := rec.Bool("full_time"); ok {
		f.FullTime = &b
	}
	if f.FiscalYear == 0 {
		// extract path had no fiscal year; fall back to the decision, then receipt, date
		switch {
		case !f.DecisionDate.IsZero():
			f.FiscalYear = int32(ptime.FiscalYear(f.DecisionDate))
		case !f.ReceivedDate.IsZero():
			f.FiscalYear = int32(ptime.FiscalYear(f.ReceivedDate))
		}
	}
	return f, nil
}

// BuildFilings builds fact_perm or fact_lca; case ids are unique across all fiscal years
func BuildFilings(dom string, ins []domain.Input, p Precedence) Output {
	table := domain.TableOf(dom)
	out := Output{Domain: dom, Table: table}
	cands := make([]domain.Candidate[domain.Filing], 0, len(ins))

	for _, in := range ins {
		f, err := filingOf(in)
		if err != nil {
			rec := in.Rec
			out.Rejects = append(out.Rejects, sink.RejectOf(rec.Domain, rec.Period.String(), rec.SourceFile, rec.Row, err))
			continue
		}
		cands = append(cands, domain.Candidate[domain.Filing]{Key: f.CaseID, Meta: metaOf(in.Rec), Row: f})
	}

	winners, conflicts := Dedup(table, cands, p)
	out.Conflicts = conflicts
	out.Rows = len(winners)
	out.Partitions = partitionsOf(table, winners, fiscalPart)
	return out
}
