// Package service builds deduplicated fact table partitions from reconciled records
package service

import (
	"context"
	"sort"

	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	"visawh/internal/services/facts/domain"
)

// Service builds fact tables with a precedence rule list per domain
type Service struct {
	rules map[string]Precedence
}

// New validates the per-domain rule lists; missing domains use DefaultPrecedence
func New(rules map[string][]string) (*Service, error) {
	s := &Service{rules: make(map[string]Precedence, len(domain.Domains))}
	for _, d := range domain.Domains {
		s.rules[d] = DefaultPrecedence(d)
	}
	for d, rs := range rules {
		if domain.TableOf(d) == "" {
			return nil, perr.Validationf("precedence for unknown domain %q", d)
		}
		p, err := ParsePrecedence(rs)
		if err != nil {
			return nil, perr.WithField(err, d)
		}
		if len(p) > 0 {
			s.rules[d] = p
		}
	}
	return s, nil
}

// Precedence returns the rule list in force for a domain
func (s *Service) Precedence(dom string) Precedence { return s.rules[dom] }

// Build maps, deduplicates and partitions one domain's records
func (s *Service) Build(ctx context.Context, dom string, ins []domain.Input) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	p := s.rules[dom]

	var out Output
	switch dom {
	case domain.DomainCutoffs:
		out = BuildCutoffs(ins, p)
	case domain.DomainPerm, domain.DomainLCA:
		out = BuildFilings(dom, ins, p)
	case domain.DomainWarn:
		out = BuildWarn(ins, p)
	case domain.DomainBenchmarks:
		out = BuildBenchmarks(ins, p)
	default:
		return Output{}, perr.InvalidArgf("no fact builder for domain %q", dom)
	}

	sort.SliceStable(out.Rejects, func(i, j int) bool {
		if out.Rejects[i].SourceFile != out.Rejects[j].SourceFile {
			return out.Rejects[i].SourceFile < out.Rejects[j].SourceFile
		}
		return out.Rejects[i].Row < out.Rejects[j].Row
	})

	logger.C(ctx).Info().
		Str("table", out.Table).
		Int("records", len(ins)).
		Int("rows", out.Rows).
		Int("partitions", len(out.Partitions)).
		Int("conflicts", len(out.Conflicts)).
		Int("losing_rows", out.LosingRows()).
		Int("rejects", len(out.Rejects)).
		Str("precedence", p.String()).
		Msg("facts built")
	return out, nil
}
