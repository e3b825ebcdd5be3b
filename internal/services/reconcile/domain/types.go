// Package domain holds the canonical record shape produced by schema reconciliation
package domain

import (
	"time"

	"visawh/internal/adapters/source"
)

// Cutoff statuses as printed in a visa bulletin
const (
	CutoffCurrent     = "C"
	CutoffUnavailable = "U"
	CutoffDate        = "D"
)

// Cutoff is a bulletin cell: Current, Unavailable or a priority date
type Cutoff struct {
	Status string
	Date   time.Time // set only for CutoffDate
}

// Value is one coerced logical field; Kind mirrors the alias map kind
type Value struct {
	Kind   string
	Text   string
	Time   time.Time
	Num    float64
	Bool   bool
	Cutoff Cutoff
}

// Record is a raw record mapped onto a domain's logical schema
// Missing or null fields are absent from Fields
type Record struct {
	Domain     string
	Period     source.Period
	SourceFile string
	Row        int
	Fields     map[string]Value
	Unmapped   []string // header names no alias recognized; shared by every record of an extract
}

// Has reports whether field is present and non-null
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Text returns a text or code field, "" when absent
func (r Record) Text(field string) string { return r.Fields[field].Text }

// Date returns a date field
func (r Record) Date(field string) (time.Time, bool) {
	v, ok := r.Fields[field]
	return v.Time, ok
}

// Num returns a money, int or float field
func (r Record) Num(field string) (float64, bool) {
	v, ok := r.Fields[field]
	return v.Num, ok
}

// Bool returns a bool field
func (r Record) Bool(field string) (bool, bool) {
	v, ok := r.Fields[field]
	return v.Bool, ok
}

// Cutoff returns a cutoff field
func (r Record) Cutoff(field string) (Cutoff, bool) {
	v, ok := r.Fields[field]
	return v.Cutoff, ok
}

// Present counts non-null fields; precedence uses it as the completeness score
func (r Record) Present() int { return len(r.Fields) }

// DriftEvent records a required logical field with no column in one extract
type DriftEvent struct {
	Domain     string `json:"domain"`
	Period     string `json:"period"`
	SourceFile string `json:"source_file"`
	Field      string `json:"field"`
}

// UnmappedCount is the number of extracts of a (domain, period) carrying an unrecognized column
type UnmappedCount struct {
	Domain string `json:"domain"`
	Period string `json:"period"`
	Column string `json:"column"`
	Files  int    `json:"files"`
}
