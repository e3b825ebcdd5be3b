package service

import (
	"sort"
	"strings"

	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/facts/domain"
)

// Rule is one precedence criterion
type Rule string

// Precedence rules
const (
	PeriodDesc       Rule = "period_desc"
	PeriodAsc        Rule = "period_asc"
	DecisionDateDesc Rule = "decision_date_desc"
	CompletenessDesc Rule = "completeness_desc"
	SourceFileDesc   Rule = "source_file_desc"
	SourceFileAsc    Rule = "source_file_asc"
)

var knownRules = map[Rule]bool{
	PeriodDesc: true, PeriodAsc: true, DecisionDateDesc: true,
	CompletenessDesc: true, SourceFileDesc: true, SourceFileAsc: true,
}

// Precedence orders candidates for one key; (source_file, row) ascending breaks remaining ties
type Precedence []Rule

// ParsePrecedence validates a rule list
func ParsePrecedence(rules []string) (Precedence, error) {
	p := make(Precedence, 0, len(rules))
	seen := map[Rule]bool{}
	for _, s := range rules {
		r := Rule(strings.ToLower(strings.TrimSpace(s)))
		if r == "" {
			continue
		}
		if !knownRules[r] {
			return nil, perr.Validationf("unknown precedence rule %q", s)
		}
		if seen[r] {
			return nil, perr.Validationf("precedence rule %q repeated", s)
		}
		seen[r] = true
		p = append(p, r)
	}
	return p, nil
}

// DefaultPrecedence returns the built in rule list for a domain
func DefaultPrecedence(dom string) Precedence {
	switch dom {
	case domain.DomainPerm, domain.DomainLCA:
		return Precedence{DecisionDateDesc, PeriodDesc, CompletenessDesc, SourceFileAsc}
	case domain.DomainWarn:
		return Precedence{PeriodDesc, SourceFileDesc}
	default:
		return Precedence{SourceFileDesc}
	}
}

func (p Precedence) String() string {
	s := make([]string, len(p))
	for i, r := range p {
		s[i] = string(r)
	}
	return strings.Join(s, ",")
}

// Wins reports whether a takes precedence over b
func (p Precedence) Wins(a, b domain.Meta) bool {
	for _, r := range p {
		switch r {
		case PeriodDesc:
			if a.PeriodKey != b.PeriodKey {
				return a.PeriodKey > b.PeriodKey
			}
		case PeriodAsc:
			if a.PeriodKey != b.PeriodKey {
				return a.PeriodKey < b.PeriodKey
			}
		case DecisionDateDesc:
			az, bz := a.Decision.IsZero(), b.Decision.IsZero()
			switch {
			case az != bz:
				return bz // a dated candidate beats an undated one
			case !a.Decision.Equal(b.Decision):
				return a.Decision.After(b.Decision)
			}
		case CompletenessDesc:
			if a.Complete != b.Complete {
				return a.Complete > b.Complete
			}
		case SourceFileDesc:
			if a.SourceFile != b.SourceFile {
				return a.SourceFile > b.SourceFile
			}
		case SourceFileAsc:
			if a.SourceFile != b.SourceFile {
				return a.SourceFile < b.SourceFile
			}
		}
	}
	if a.SourceFile != b.SourceFile {
		return a.SourceFile < b.SourceFile
	}
	return a.Row < b.Row
}

// Dedup keeps one winner per key and reports one conflict per (key, losing source file)
// Winners come back sorted by key
func Dedup[T any](table string, cands []domain.Candidate[T], p Precedence) ([]domain.Candidate[T], []sink.Conflict) {
	best := make(map[string]int, len(cands))
	for i := range cands {
		j, ok := best[cands[i].Key]
		if !ok || p.Wins(cands[i].Meta, cands[j].Meta) {
			best[cands[i].Key] = i
		}
	}

	type loser struct{ key, source string }
	losers := map[loser]int{}
	for i := range cands {
		if best[cands[i].Key] != i {
			losers[loser{cands[i].Key, cands[i].Meta.SourceFile}]++
		}
	}

	winners := make([]domain.Candidate[T], 0, len(best))
	for _, i := range best {
		winners = append(winners, cands[i])
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].Key < winners[j].Key })

	conflicts := make([]sink.Conflict, 0, len(losers))
	rule := p.String()
	for l, n := range losers {
		w := cands[best[l.key]]
		conflicts = append(conflicts, sink.Conflict{
			Table:        table,
			Key:          l.key,
			WinnerSource: w.Meta.SourceFile,
			WinnerRow:    w.Meta.Row,
			LoserSource:  l.source,
			LoserRows:    n,
			Precedence:   rule,
		})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Key != conflicts[j].Key {
			return conflicts[i].Key < conflicts[j].Key
		}
		return conflicts[i].LoserSource < conflicts[j].LoserSource
	})
	return winners, conflicts
}
