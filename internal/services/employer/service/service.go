// Package service resolves raw employer names to stable employer ids and owns the dimension
package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"visawh/internal/core/normalize"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"
	pstrings "visawh/internal/platform/strings"
	"visawh/internal/services/employer/domain"
)

// Registry is the employer identity map; ids only ever grow, aliases and source files only accumulate
type Registry struct {
	norm *normalize.Normalizer

	mu      sync.Mutex
	byAlias map[string]*entry
	byKey   map[string]*entry
}

type entry struct {
	id      string
	key     string
	aliases map[string]struct{}
	sources map[string]struct{}
}

// NewRegistry returns an empty registry using norm for name normalization
func NewRegistry(norm *normalize.Normalizer) *Registry {
	if norm == nil {
		norm = normalize.New()
	}
	return &Registry{
		norm:    norm,
		byAlias: map[string]*entry{},
		byKey:   map[string]*entry{},
	}
}

// Normalize returns the matching key for a raw employer name, "" when unusable
func (r *Registry) Normalize(raw string) string { return r.norm.EmployerKey(raw) }

// Resolve returns the employer id for raw, minting one for an unseen key
// An empty or unusable name is an UnresolvableEmployer error
func (r *Registry) Resolve(raw, sourceFile string) (string, error) {
	alias := strings.Join(strings.Fields(raw), " ")
	if alias == "" {
		return "", perr.UnresolvableEmployerf("empty employer name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byAlias[alias]; ok {
		e.sources[sourceFile] = struct{}{}
		return e.id, nil
	}
	key := r.norm.EmployerKey(alias)
	if key == "" {
		return "", perr.UnresolvableEmployerf("employer name %q normalizes to nothing", alias)
	}
	e, ok := r.byKey[key]
	if !ok {
		e = &entry{
			id:      domain.IDOf(key),
			key:     key,
			aliases: map[string]struct{}{},
			sources: map[string]struct{}{},
		}
		r.byKey[key] = e
	}
	e.aliases[alias] = struct{}{}
	e.sources[sourceFile] = struct{}{}
	r.byAlias[alias] = e
	return e.id, nil
}

// ResolveAll resolves items in (source_file, row) order from a single goroutine and
// returns results aligned with items
func (r *Registry) ResolveAll(ctx context.Context, items []domain.Item) ([]domain.Result, error) {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := items[order[a]], items[order[b]]
		if x.SourceFile != y.SourceFile {
			return x.SourceFile < y.SourceFile
		}
		return x.Row < y.Row
	})

	out := make([]domain.Result, len(items))
	failed := 0
	for n, i := range order {
		if n%8192 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		id, err := r.Resolve(items[i].Raw, items[i].SourceFile)
		out[i] = domain.Result{EmployerID: id, Err: err}
		if err != nil {
			failed++
		}
	}
	logger.C(ctx).Info().
		Int("items", len(items)).
		Int("unresolved", failed).
		Int("employers", r.Len()).
		Msg("employer: resolved")
	return out, nil
}

// Len is the number of distinct employers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Snapshot returns the dimension rows sorted by employer id
func (r *Registry) Snapshot() []domain.Employer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Employer, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, domain.Employer{
			EmployerID:    e.id,
			CanonicalName: pstrings.Title(e.key),
			NormalizedKey: e.key,
			Aliases:       sortedKeys(e.aliases),
			SourceFiles:   sortedKeys(e.sources),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployerID < out[j].EmployerID })
	return out
}

// NearDuplicates reports keys that differ only by spacing, sorted by compact form
func (r *Registry) NearDuplicates() []domain.NearDuplicate {
	r.mu.Lock()
	groups := map[string][]string{}
	for key := range r.byKey {
		c := strings.ReplaceAll(key, " ", "")
		groups[c] = append(groups[c], key)
	}
	r.mu.Unlock()

	var out []domain.NearDuplicate
	for c, keys := range groups {
		if len(keys) < 2 {
			continue
		}
		sort.Strings(keys)
		out = append(out, domain.NearDuplicate{Compact: c, Keys: keys})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compact < out[j].Compact })
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
