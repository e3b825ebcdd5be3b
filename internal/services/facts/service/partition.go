package service

import (
	"context"
	"sort"

	"visawh/internal/adapters/parquetfs"
	"visawh/internal/adapters/sink"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/facts/domain"
)

// Partition is one hive partition of a fact table ready to be written
type Partition struct {
	Table string
	Key   string // hive path, e.g. fiscal_year=2024
	Rows  int

	keys  []string
	write func(ctx context.Context, t parquetfs.Table) (parquetfs.Written, error)
}

// Write stages, checks and promotes the partition under root
func (p Partition) Write(ctx context.Context, root string) (parquetfs.Written, error) {
	if dup, ok := firstDuplicate(p.keys); ok {
		return parquetfs.Written{}, perr.WithOp(
			perr.DuplicatePrimaryKeyf("%s/%s: primary key %q appears twice", p.Table, p.Key, dup),
			"facts.write")
	}
	return p.write(ctx, parquetfs.NewTable(root, p.Table))
}

// Output is everything one domain contributes to a build
type Output struct {
	Domain     string
	Table      string
	Partitions []Partition
	Conflicts  []sink.Conflict
	Rejects    []sink.Reject
	Skipped    int // rows intentionally dropped, e.g. blank bulletin cells
	Rows       int
}

// LosingRows sums conflict counts
func (o Output) LosingRows() int {
	n := 0
	for _, c := range o.Conflicts {
		n += c.LoserRows
	}
	return n
}

// partitionsOf groups key-sorted winners by partition, keeping key order inside each group
func partitionsOf[T any](table string, winners []domain.Candidate[T], partOf func(T) string) []Partition {
	groups := map[string][]domain.Candidate[T]{}
	for _, w := range winners {
		k := partOf(w.Row)
		groups[k] = append(groups[k], w)
	}

	out := make([]Partition, 0, len(groups))
	for k, g := range groups {
		keys := make([]string, len(g))
		rows := make([]T, len(g))
		for i, c := range g {
			keys[i] = c.Key
			rows[i] = c.Row
		}
		part := k
		out = append(out, Partition{
			Table: table,
			Key:   part,
			Rows:  len(rows),
			keys:  keys,
			write: func(ctx context.Context, t parquetfs.Table) (parquetfs.Written, error) {
				return parquetfs.WritePartition(ctx, t, part, rows)
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func firstDuplicate(keys []string) (string, bool) {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return k, true
		}
		seen[k] = struct{}{}
	}
	return "", false
}
