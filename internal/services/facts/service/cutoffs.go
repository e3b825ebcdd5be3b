package service

import (
	"fmt"
	"strings"

	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/facts/domain"
	recdom "visawh/internal/services/reconcile/domain"
)

// Charts
const (
	ChartFinalAction    = "FAD"
	ChartDatesForFiling = "DFF"
)

// countryColumns maps cutoff fields to country codes, in output order
var countryColumns = [...]struct{ field, code string }{
	{"country_row", "ROW"},
	{"country_chn", "CHN"},
	{"country_ind", "IND"},
	{"country_mex", "MEX"},
	{"country_phl", "PHL"},
}

var familyCategories = map[string]string{
	"F1": "F1", "F2A": "F2A", "F2B": "F2B", "F3": "F3", "F4": "F4",
	"EB1": "EB1", "EB2": "EB2", "EB3": "EB3", "EB3-OW": "EB3-OW", "EB4": "EB4",
	"EB4-RW": "EB4-RW", "EB5": "EB5",
}

// Category maps a printed bulletin category to its canonical code
func Category(raw string) (string, bool) {
	s := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if s == "" {
		return "", false
	}
	if c, ok := familyCategories[strings.ToUpper(strings.ReplaceAll(s, " ", ""))]; ok {
		return c, true
	}
	switch {
	case strings.HasPrefix(s, "other workers"):
		return "EB3-OW", true
	case strings.Contains(s, "religious"):
		return "EB4-RW", true
	case strings.Contains(s, "rural"):
		return "EB5-RURAL", true
	case strings.Contains(s, "high unemployment"):
		return "EB5-HIGH-UNEMPLOYMENT", true
	case strings.Contains(s, "infrastructure"):
		return "EB5-INFRASTRUCTURE", true
	case strings.HasPrefix(s, "5th") && strings.Contains(s, "unreserved"):
		return "EB5-UNRESERVED", true
	case strings.HasPrefix(s, "5th"):
		return "EB5", true
	case strings.HasPrefix(s, "1st"):
		return "EB1", true
	case strings.HasPrefix(s, "2nd"):
		return "EB2", true
	case strings.HasPrefix(s, "3rd"):
		return "EB3", true
	case strings.HasPrefix(s, "4th"):
		return "EB4", true
	}
	return "", false
}

// Chart normalizes a chart column value, falling back to the file name suffix
// A bulletin with neither is a final action chart
func Chart(value, fileName string) (string, error) {
	if v := strings.ToUpper(strings.Join(strings.Fields(value), " ")); v != "" {
		switch v {
		case "FAD", "A", "FINAL ACTION", "FINAL ACTION DATES":
			return ChartFinalAction, nil
		case "DFF", "B", "DATES FOR FILING", "FILING":
			return ChartDatesForFiling, nil
		}
		return "", perr.RecordParsef("chart", "unknown chart %q", value)
	}
	base := strings.ToUpper(fileName)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	switch {
	case strings.HasSuffix(base, "_DFF"), strings.HasSuffix(base, "-DFF"):
		return ChartDatesForFiling, nil
	default:
		return ChartFinalAction, nil
	}
}

func cutoffKey(c domain.Cutoff) string {
	return fmt.Sprintf("%04d|%02d|%s|%s|%s", c.BulletinYear, c.BulletinMonth, c.Category, c.Country, c.Chart)
}

func cutoffPart(c domain.Cutoff) string {
	return fmt.Sprintf("bulletin_year=%04d/bulletin_month=%02d", c.BulletinYear, c.BulletinMonth)
}

// BuildCutoffs explodes bulletin rows into one row per country column
func BuildCutoffs(ins []domain.Input, p Precedence) Output {
	out := Output{Domain: domain.DomainCutoffs, Table: domain.TableCutoffs}
	var cands []domain.Candidate[domain.Cutoff]

	for _, in := range ins {
		rec := in.Rec
		reject := func(err error) {
			out.Rejects = append(out.Rejects, sink.RejectOf(rec.Domain, rec.Period.String(), rec.SourceFile, rec.Row, err))
		}
		if rec.Period.Month == 0 {
			reject(perr.RecordParsef("bulletin_month", "bulletin period %s has no month", rec.Period))
			continue
		}
		cat, ok := Category(rec.Text("category"))
		if !ok {
			reject(perr.RecordParsef("category", "unknown bulletin category %q", rec.Text("category")))
			continue
		}
		chart, err := Chart(rec.Text("chart"), in.SourceName)
		if err != nil {
			reject(err)
			continue
		}
		for _, cc := range countryColumns {
			cell, ok := rec.Cutoff(cc.field)
			if !ok {
				out.Skipped++
				continue
			}
			row := domain.Cutoff{
				BulletinYear:  int32(rec.Period.Year),
				BulletinMonth: int32(rec.Period.Month),
				Category:      cat,
				Country:       cc.code,
				Chart:         chart,
				Status:        cell.Status,
				SourceFile:    rec.SourceFile,
				SourceRow:     int32(rec.Row),
			}
			if cell.Status == recdom.CutoffDate {
				row.CutoffDate = cell.Date
			}
			cands = append(cands, domain.Candidate[domain.Cutoff]{
				Key:  cutoffKey(row),
				Meta: metaOf(rec),
				Row:  row,
			})
		}
	}

	winners, conflicts := Dedup(domain.TableCutoffs, cands, p)
	out.Conflicts = conflicts
	out.Rows = len(winners)
	out.Partitions = partitionsOf(domain.TableCutoffs, winners, cutoffPart)
	return out
}

func metaOf(rec recdom.Record) domain.Meta {
	m := domain.Meta{
		PeriodKey:  rec.Period.Key(),
		Complete:   rec.Present(),
		SourceFile: rec.SourceFile,
		Row:        rec.Row,
	}
	if d, ok := rec.Date("decision_date"); ok {
		m.Decision = d
	}
	return m
}
