// Package normalize provides the deterministic text pipeline behind employer keys
// Pipeline order
// 1 Sanitize controls and repair UTF-8
// 2 Unicode NFKD decomposition
// 3 Case folding
// 4 Remove combining marks and format chars, so accents fall away
// 5 Width fold fullwidth to ASCII, then recompose NFC
// 6 Collapse whitespace to single spaces and trim
//
// EmployerKey continues with punctuation folding, legal suffix removal and a minimum length
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// DefaultSuffixes are legal entity designators dropped from employer keys
var DefaultSuffixes = []string{
	"inc", "incorporated", "llc", "l l c", "corp", "corporation", "co", "company",
	"ltd", "limited", "lp", "llp", "plc", "pc", "pllc", "na",
}

// DefaultMinLen is the shortest usable employer key in runes
const DefaultMinLen = 3

// Normalizer is concurrency safe when used with the pool below
type Normalizer struct {
	suffixes [][]string // tokenized, longest first
	minLen   int
}

// Option customizes a Normalizer
type Option func(*Normalizer)

// WithSuffixes replaces the legal suffix list
func WithSuffixes(s []string) Option {
	return func(n *Normalizer) { n.suffixes = tokenizeSuffixes(s) }
}

// WithMinLen sets the minimum key length; shorter keys become empty
func WithMinLen(l int) Option {
	return func(n *Normalizer) {
		if l > 0 {
			n.minLen = l
		}
	}
}

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		// order matters and mirrors the documented pipeline
		return transform.Chain(
			norm.NFKD,
			cases.Fold(),                       // unicode case folding
			runes.Remove(runes.In(unicode.Mn)), // strip combining marks
			runes.Remove(runes.In(unicode.Cf)), // strip format chars ZWJ ZWNJ FEFF etc
			width.Fold,                         // map fullwidth forms to ASCII
			norm.NFC,
		)
	},
}

// New constructs a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{suffixes: tokenizeSuffixes(DefaultSuffixes), minLen: DefaultMinLen}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize returns the folded form of s following steps 1-6
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}

	// 1 strip controls, drop invalid bytes
	s = Sanitize(s)

	// 2-5 transform via pooled chain then reset and return it
	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		ns = strings.ToLower(s)
	}

	// 6 collapse whitespace and trim
	return collapseSpaces(ns)
}

// EmployerKey returns the matching key for a raw employer name, or "" when unusable
// "ACME Widgets, Inc." and "Acme  Widgets Incorporated" share the key "acme widgets"
func (n *Normalizer) EmployerKey(raw string) string {
	base := n.Normalize(raw)
	if base == "" {
		return ""
	}
	toks := strings.Fields(punctToSpace(base))
	toks = n.dropSuffixes(toks)
	key := strings.Join(toks, " ")
	if len([]rune(key)) < n.minLen {
		return ""
	}
	return key
}

// dropSuffixes removes every whole-token occurrence of a suffix phrase
func (n *Normalizer) dropSuffixes(toks []string) []string {
	out := toks[:0:0]
	for i := 0; i < len(toks); {
		matched := 0
		for _, suf := range n.suffixes {
			if hasPhrase(toks[i:], suf) {
				matched = len(suf)
				break
			}
		}
		if matched > 0 {
			i += matched
			continue
		}
		out = append(out, toks[i])
		i++
	}
	return out
}

func hasPhrase(toks, phrase []string) bool {
	if len(phrase) == 0 || len(toks) < len(phrase) {
		return false
	}
	for j, p := range phrase {
		if toks[j] != p {
			return false
		}
	}
	return true
}

// tokenizeSuffixes lowercases and splits multi-word suffixes, longest phrase first
func tokenizeSuffixes(in []string) [][]string {
	out := make([][]string, 0, len(in))
	for _, s := range in {
		f := strings.Fields(strings.ToLower(punctToSpace(s)))
		if len(f) > 0 {
			out = append(out, f)
		}
	}
	// stable insertion sort by token count desc; lists are tiny
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// punctToSpace maps punctuation and symbols to spaces; periods and apostrophes are
// dropped so abbreviations like "N.A." and "L.L.C." fold to one token
func punctToSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '\'', '\u2019':
			return -1
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
}

// collapseSpaces converts whitespace runs to a single ASCII space and trims the edges
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
