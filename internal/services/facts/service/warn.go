package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/facts/domain"
)

// StateOf takes the state from the record, else from a two letter directory or file prefix
func StateOf(field string, dirs []string, name string) string {
	if s := strings.ToUpper(strings.TrimSpace(field)); isState(s) {
		return s
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if s := strings.ToUpper(dirs[i]); isState(s) {
			return s
		}
	}
	if i := strings.IndexAny(name, "_-."); i == 2 {
		if s := strings.ToUpper(name[:2]); isState(s) {
			return s
		}
	}
	return ""
}

func isState(s string) bool {
	return len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}

// EventKey identifies a notice by state, date, normalized employer and city
func EventKey(state, noticeDate, employerKey, city string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		state, noticeDate, employerKey, strings.ToLower(strings.Join(strings.Fields(city), " ")),
	}, "|")))
	return hex.EncodeToString(sum[:])[:32]
}

func warnOf(in domain.Input) (domain.WarnEvent, error) {
	rec := in.Rec
	state := StateOf(rec.Text("state"), in.Dirs, in.SourceName)
	if state == "" {
		return domain.WarnEvent{}, perr.RecordParsef("state", "no state in record, directory or file name")
	}
	date, ok := rec.Date("notice_date")
	if !ok {
		return domain.WarnEvent{}, perr.RecordParsef("notice_date", "empty notice date")
	}
	if in.EmployerErr != nil {
		return domain.WarnEvent{}, in.EmployerErr
	}
	if in.EmployerID == "" {
		return domain.WarnEvent{}, perr.UnresolvableEmployerf("no employer for notice")
	}

	n, _ := rec.Num("employees_affected")
	if n < 0 {
		n = 0
	}
	if n > math.MaxInt32 {
		return domain.WarnEvent{}, perr.RecordParsef("employees_affected", "employees affected %.0f out of range", n)
	}
	city := rec.Text("city")
	return domain.WarnEvent{
		EventKey:          EventKey(state, date.Format("2006-01-02"), in.EmployerKey, city),
		NoticeYear:        int32(date.Year()),
		State:             state,
		NoticeDate:        date,
		EmployerID:        in.EmployerID,
		EmployerNameRaw:   rec.Text("employer_name"),
		City:              city,
		EmployeesAffected: int32(n),
		SourceFile:        rec.SourceFile,
		SourceRow:         int32(rec.Row),
	}, nil
}

func noticePart(w domain.WarnEvent) string { return fmt.Sprintf("notice_year=%04d", w.NoticeYear) }

// BuildWarn builds fact_warn_events
func BuildWarn(ins []domain.Input, p Precedence) Output {
	out := Output{Domain: domain.DomainWarn, Table: domain.TableWarn}
	cands := make([]domain.Candidate[domain.WarnEvent], 0, len(ins))

	for _, in := range ins {
		w, err := warnOf(in)
		if err != nil {
			rec := in.Rec
			out.Rejects = append(out.Rejects, sink.RejectOf(rec.Domain, rec.Period.String(), rec.SourceFile, rec.Row, err))
			continue
		}
		cands = append(cands, domain.Candidate[domain.WarnEvent]{Key: w.EventKey, Meta: metaOf(in.Rec), Row: w})
	}

	winners, conflicts := Dedup(domain.TableWarn, cands, p)
	out.Conflicts = conflicts
	out.Rows = len(winners)
	out.Partitions = partitionsOf(domain.TableWarn, winners, noticePart)
	return out
}
