// Package domain defines the publish ports and table descriptors
package domain

import "context"

// Column is one published column with its ClickHouse type
type Column struct {
	Name string
	Type string
}

// Table describes a warehouse table mirrored into ClickHouse
type Table struct {
	Name    string
	Columns []Column
	OrderBy []string
}

// Batch is a slice of rows in Table.Columns order
type Batch [][]any

// TableRepo writes tables into the serving store
type TableRepo interface {
	EnsureTable(ctx context.Context, t Table) error
	Insert(ctx context.Context, t Table, rows Batch) error
}
