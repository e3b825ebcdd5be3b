package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"visawh/internal/adapters/parquetfs"
	perr "visawh/internal/platform/errors"
	"visawh/internal/services/validate/domain"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DuckDB runs the checks as SQL over read_parquet on an in-memory database
type DuckDB struct {
	db *sql.DB
}

// NewDuckDB opens an in-memory DuckDB
func NewDuckDB() (*DuckDB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "open duckdb")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "ping duckdb")
	}
	return &DuckDB{db: db}, nil
}

// Name implements domain.Engine
func (d *DuckDB) Name() string { return "duckdb" }

// Close implements domain.Engine
func (d *DuckDB) Close() error { return d.db.Close() }

func quoteList(paths []string) string {
	q := make([]string, len(paths))
	for i, p := range paths {
		q[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
	}
	return "[" + strings.Join(q, ", ") + "]"
}

func ident(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func keyExpr(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = ident(c) + "::VARCHAR"
	}
	return "concat_ws('|', " + strings.Join(parts, ", ") + ")"
}

// source returns a read_parquet call over the promoted files of a table, or "" when it has none
func source(root, table string) (string, int, error) {
	files, err := parquetfs.NewTable(root, table).Files()
	if err != nil || len(files) == 0 {
		return "", 0, err
	}
	return "read_parquet(" + quoteList(files) + ")", len(files), nil
}

// Table implements domain.Engine
func (d *DuckDB) Table(ctx context.Context, root string, spec domain.TableSpec, dimension string) (domain.TableStats, error) {
	st := domain.TableStats{Table: spec.Table, NonNull: make(map[string]int, len(spec.Monitored))}
	src, n, err := source(root, spec.Table)
	if err != nil || src == "" {
		return st, err
	}
	st.Files = n

	cols := []string{"count(*)"}
	for _, f := range spec.Monitored {
		// required string columns store absent values as ''
		cols = append(cols, "count(nullif(CAST("+ident(f)+" AS VARCHAR), ''))")
	}
	counts := make([]int64, len(cols))
	dest := make([]any, len(cols))
	for i := range counts {
		dest[i] = &counts[i]
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), src)
	if err := d.db.QueryRowContext(ctx, q).Scan(dest...); err != nil {
		return st, perr.Wrapf(err, perr.ErrorCodeDB, "count %s", spec.Table)
	}
	st.Rows = int(counts[0])
	for i, f := range spec.Monitored {
		st.NonNull[f] = int(counts[i+1])
	}

	dups := fmt.Sprintf("SELECT %s AS k FROM %s GROUP BY ALL HAVING count(*) > 1 ORDER BY k", keyExpr(spec.Key), src)
	rows, err := d.db.QueryContext(ctx, dups)
	if err != nil {
		return st, perr.Wrapf(err, perr.ErrorCodeDB, "duplicate keys %s", spec.Table)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return st, perr.Wrapf(err, perr.ErrorCodeDB, "duplicate keys %s", spec.Table)
		}
		st.DuplicateKeys++
		if len(st.DuplicateSample) < sampleSize {
			st.DuplicateSample = append(st.DuplicateSample, k)
		}
	}
	if err := rows.Err(); err != nil {
		return st, perr.Wrapf(err, perr.ErrorCodeDB, "duplicate keys %s", spec.Table)
	}

	if spec.EmployerFK {
		if err := d.referential(ctx, root, src, dimension, &st); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (d *DuckDB) referential(ctx context.Context, root, src, dimension string, st *domain.TableStats) error {
	dim, _, err := source(root, dimension)
	if err != nil {
		return err
	}
	var refs, missing int64
	if dim == "" {
		q := fmt.Sprintf("SELECT count(*) FROM %s WHERE employer_id IS NOT NULL AND employer_id <> ''", src)
		err = d.db.QueryRowContext(ctx, q).Scan(&refs)
		missing = refs
	} else {
		q := fmt.Sprintf(`SELECT count(*), count(*) FILTER (WHERE d.employer_id IS NULL)
FROM %s f LEFT JOIN (SELECT DISTINCT employer_id FROM %s) d ON f.employer_id = d.employer_id
WHERE f.employer_id IS NOT NULL AND f.employer_id <> ''`, src, dim)
		err = d.db.QueryRowContext(ctx, q).Scan(&refs, &missing)
	}
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "referential %s", st.Table)
	}
	st.EmployerRefs, st.EmployerMissing = int(refs), int(missing)
	return nil
}

// Monotonicity implements domain.Engine
func (d *DuckDB) Monotonicity(ctx context.Context, root, table string) (domain.MonotonicStats, error) {
	var st domain.MonotonicStats
	src, _, err := source(root, table)
	if err != nil || src == "" {
		return st, err
	}
	base := fmt.Sprintf(`WITH b AS (
  SELECT soc_code, area_code, ref_year, [p10, p25, median, p75, p90] AS ps
  FROM %s
  WHERE p10 IS NOT NULL AND p25 IS NOT NULL AND median IS NOT NULL
    AND p75 IS NOT NULL AND p90 IS NOT NULL
)`, src)

	var checked, bad int64
	q := base + " SELECT count(*), count(*) FILTER (WHERE ps <> list_sort(ps)) FROM b"
	if err := d.db.QueryRowContext(ctx, q).Scan(&checked, &bad); err != nil {
		return st, perr.Wrapf(err, perr.ErrorCodeDB, "monotonicity %s", table)
	}
	st.Checked, st.Violations = int(checked), int(bad)
	if bad == 0 {
		return st, nil
	}

	q = base + fmt.Sprintf(` SELECT concat_ws('|', soc_code, area_code, ref_year::VARCHAR) FROM b
WHERE ps <> list_sort(ps) ORDER BY ref_year, soc_code, area_code LIMIT %d`, sampleSize)
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return st, perr.Wrapf(err, perr.ErrorCodeDB, "monotonicity sample %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return st, perr.Wrapf(err, perr.ErrorCodeDB, "monotonicity sample %s", table)
		}
		st.Sample = append(st.Sample, k)
	}
	return st, rows.Err()
}
