package store

import (
	"context"
	"errors"
	"testing"
)

type fakeTag struct{ n int64 }

func (t fakeTag) String() string      { return "UPDATE" }
func (t fakeTag) RowsAffected() int64 { return t.n }

type fakeRow struct {
	v   any
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch p := dest[0].(type) {
	case *int64:
		*p = r.v.(int64)
	case *string:
		*p = r.v.(string)
	}
	return nil
}

type fakeRows struct {
	data []string
	i    int
	err  error
}

func (r *fakeRows) Next() bool { r.i++; return r.i <= len(r.data) }
func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.data[r.i-1]
	return nil
}
func (r *fakeRows) Err() error        { return r.err }
func (r *fakeRows) Close()            {}
func (r *fakeRows) Columns() []string { return []string{"partition"} }

type fakeQ struct {
	tag  CommandTag
	err  error
	row  Row
	rows Rows
}

func (f fakeQ) Exec(context.Context, string, ...any) (CommandTag, error) { return f.tag, f.err }
func (f fakeQ) Query(context.Context, string, ...any) (Rows, error)      { return f.rows, f.err }
func (f fakeQ) QueryRow(context.Context, string, ...any) Row             { return f.row }

func TestExecOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name    string
		q       fakeQ
		wantErr bool
	}{
		{"one row", fakeQ{tag: fakeTag{1}}, false},
		{"zero rows", fakeQ{tag: fakeTag{0}}, true},
		{"two rows", fakeQ{tag: fakeTag{2}}, true},
		{"exec error", fakeQ{err: errors.New("boom")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ExecOne(ctx, tc.q, "UPDATE build_runs SET status='ok' WHERE run_id=$1", "r1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestScalar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	n, err := Scalar[int64](ctx, fakeQ{row: fakeRow{v: int64(42)}}, "SELECT count(*) FROM build_partitions")
	if err != nil || n != 42 {
		t.Fatalf("Scalar = %d, %v", n, err)
	}
	_, err = Scalar[int64](ctx, fakeQ{row: fakeRow{err: errors.New("no rows")}}, "SELECT 1")
	if err == nil {
		t.Fatalf("expected scan error")
	}
}

func TestMany(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := fakeQ{rows: &fakeRows{data: []string{"fiscal_year=2023", "fiscal_year=2024"}}}
	got, err := Many(ctx, q, func(r Row) (string, error) {
		var s string
		err := r.Scan(&s)
		return s, err
	}, "SELECT partition FROM build_partitions")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != "fiscal_year=2024" {
		t.Fatalf("Many = %v", got)
	}
}
