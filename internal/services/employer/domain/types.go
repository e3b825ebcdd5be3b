// Package domain defines employer identity types and the id derivation
package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// IDLen is the hex length of an employer id (128 bits)
const IDLen = 32

// Employer is one row of dim_employer
type Employer struct {
	EmployerID    string   `parquet:"employer_id"`
	CanonicalName string   `parquet:"canonical_name"`
	NormalizedKey string   `parquet:"normalized_key"`
	Aliases       []string `parquet:"aliases,list"`
	SourceFiles   []string `parquet:"source_files,list"`
}

// NearDuplicate groups distinct keys that collide once spaces are removed
// They are reported for review and never merged
type NearDuplicate struct {
	Compact string   `json:"compact"`
	Keys    []string `json:"keys"`
}

// Item is one employer occurrence to resolve
type Item struct {
	Raw        string
	SourceFile string
	Row        int
}

// Result is the outcome for one Item, aligned with the input slice
type Result struct {
	EmployerID string
	Err        error
}

// ResolverPort assigns employer ids
type ResolverPort interface {
	Resolve(raw, sourceFile string) (string, error)
}

// IDOf derives the employer id from a normalized key; the same key always yields the same id
func IDOf(key string) string {
	sum := sha256.Sum256([]byte("employer:" + key))
	return hex.EncodeToString(sum[:])[:IDLen]
}
