// Package service maps raw extract headers onto logical schemas and coerces values
package service

import (
	"visawh/internal/adapters/aliasmap"
	"visawh/internal/adapters/source"
	pstrings "visawh/internal/platform/strings"
)

// Registry is the inspectable alias table keyed by (domain, period)
type Registry struct {
	doc     *aliasmap.Doc
	domains map[string][]layoutIndex
}

type layoutIndex struct {
	aliasmap.Layout
	keys [][]string // per field, folded aliases in declaration order
}

// NewRegistry indexes a validated alias document
func NewRegistry(doc *aliasmap.Doc) *Registry {
	r := &Registry{doc: doc, domains: map[string][]layoutIndex{}}
	for _, dm := range doc.Domains {
		for _, l := range dm.Layouts {
			li := layoutIndex{Layout: l, keys: make([][]string, len(l.Fields))}
			for i, f := range l.Fields {
				for _, a := range f.Aliases {
					li.keys[i] = append(li.keys[i], pstrings.HeaderKey(a))
				}
			}
			r.domains[dm.Name] = append(r.domains[dm.Name], li)
		}
	}
	return r
}

// Domains lists the configured source domains in document order
func (r *Registry) Domains() []aliasmap.Domain { return r.doc.Domains }

// Layout returns the layout covering period for domain
func (r *Registry) Layout(domain string, period source.Period) (aliasmap.Layout, bool) {
	li, ok := r.layout(domain, period)
	return li.Layout, ok
}

func (r *Registry) layout(domain string, period source.Period) (layoutIndex, bool) {
	for _, li := range r.domains[domain] {
		if li.Contains(period.Year) {
			return li, true
		}
	}
	return layoutIndex{}, false
}

// Resolve returns the logical field a raw header maps to for (domain, period)
// Headers compare case and punctuation insensitively; fields are tried in declaration order
func (r *Registry) Resolve(domain string, period source.Period, header string) (string, bool) {
	li, ok := r.layout(domain, period)
	if !ok {
		return "", false
	}
	key := pstrings.HeaderKey(header)
	if key == "" {
		return "", false
	}
	for i, f := range li.Fields {
		for _, k := range li.keys[i] {
			if k == key {
				return f.Name, true
			}
		}
	}
	return "", false
}
