// Package repo persists the employer dimension as an unpartitioned parquet table
package repo

import (
	"context"

	"visawh/internal/adapters/parquetfs"
	"visawh/internal/services/employer/domain"
)

// Table is the dimension table name
const Table = "dim_employer"

// Dim reads and writes dim_employer under a version root
type Dim struct{ t parquetfs.Table }

// NewDim returns the dimension store rooted at root
func NewDim(root string) Dim { return Dim{t: parquetfs.NewTable(root, Table)} }

// Write replaces the dimension atomically; rows must already be sorted by employer id
func (d Dim) Write(ctx context.Context, rows []domain.Employer) (parquetfs.Written, error) {
	return parquetfs.WritePartition(ctx, d.t, "", rows)
}

// Read loads every dimension row
func (d Dim) Read(ctx context.Context) ([]domain.Employer, error) {
	return parquetfs.ReadTable[domain.Employer](ctx, d.t)
}

// IDs loads the set of known employer ids
func (d Dim) IDs(ctx context.Context) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	err := parquetfs.ScanTable(ctx, d.t, func(_ string, rows []domain.Employer) error {
		for _, e := range rows {
			ids[e.EmployerID] = struct{}{}
		}
		return nil
	})
	return ids, err
}
