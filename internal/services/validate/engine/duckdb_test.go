//go:build duckdb

package engine

import "testing"

// Runs the same fixture through DuckDB; needs cgo and the duckdb bindings
func TestDuckDB_MatchesParquet(t *testing.T) {
	e, err := NewDuckDB()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()
	checkEngine(t, e, seed(t))
}
