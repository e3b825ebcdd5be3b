// Package parquetfs writes and reads hive-partitioned parquet tables on the local filesystem
//
// Every partition is written into <table>/.staging, fsynced and promoted with a rename, so a
// reader sees either the previous partition or the complete new one and never a torn file
package parquetfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	perr "visawh/internal/platform/errors"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

const (
	// StagingDir holds in-flight partitions; readers skip it
	StagingDir = ".staging"
	// FileName is the single data file of each partition
	FileName = "part-00000.parquet"

	readBatch = 1024
)

// afterStage runs between the staged write and promotion; tests use it to simulate a crash
var afterStage = func(stagingDir string) error { return nil }

// Table is one parquet table rooted at Root/Name
type Table struct {
	Root string
	Name string
}

// NewTable returns a handle for the table dir Root/Name
func NewTable(root, name string) Table { return Table{Root: root, Name: name} }

// Dir is the table directory
func (t Table) Dir() string { return filepath.Join(t.Root, t.Name) }

// Written describes one promoted partition
type Written struct {
	Table     string
	Partition string
	Path      string
	Rows      int
	Bytes     int64
}

// WritePartition stages rows into part (hive path such as fiscal_year=2024, or "" for an
// unpartitioned table) and promotes it. Rows are written in the given order
func WritePartition[T any](ctx context.Context, t Table, part string, rows []T) (Written, error) {
	w := Written{Table: t.Name, Partition: part, Rows: len(rows)}
	if err := ctx.Err(); err != nil {
		return w, err
	}
	if err := checkPart(part); err != nil {
		return w, err
	}

	stageRoot := filepath.Join(t.Dir(), StagingDir)
	stage := filepath.Join(stageRoot, stageName(part)+"-"+uuid.NewString())
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return w, perr.Wrapf(err, perr.ErrorCodeIO, "stage %s/%s", t.Name, part)
	}
	promoted := false
	defer func() {
		if !promoted {
			_ = os.RemoveAll(stage)
		}
	}()

	n, err := writeFile(filepath.Join(stage, FileName), rows)
	if err != nil {
		return w, perr.Wrapf(err, perr.ErrorCodeIO, "write %s/%s", t.Name, part)
	}
	w.Bytes = n
	if err := syncDir(stage); err != nil {
		return w, perr.Wrapf(err, perr.ErrorCodeIO, "sync %s/%s", t.Name, part)
	}
	if err := afterStage(stage); err != nil {
		return w, err
	}
	if err := ctx.Err(); err != nil {
		return w, err
	}

	if part == "" {
		// unpartitioned: the file itself is swapped in place
		w.Path = filepath.Join(t.Dir(), FileName)
		if err := os.Rename(filepath.Join(stage, FileName), w.Path); err != nil {
			return w, perr.Wrapf(err, perr.ErrorCodeIO, "promote %s", t.Name)
		}
		if err := syncDir(t.Dir()); err != nil {
			return w, perr.Wrapf(err, perr.ErrorCodeIO, "sync %s", t.Name)
		}
		return w, nil
	}

	target := filepath.Join(t.Dir(), filepath.FromSlash(part))
	if err := promote(stage, target, stageRoot); err != nil {
		return w, perr.Wrapf(err, perr.ErrorCodeIO, "promote %s/%s", t.Name, part)
	}
	promoted = true
	w.Path = filepath.Join(target, FileName)
	return w, nil
}

func writeFile[T any](path string, rows []T) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	pw := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Zstd))
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := pw.Close(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	return fi.Size(), f.Close()
}

// promote renames stage onto target; an existing target is moved aside first and removed after
func promote(stage, target, stageRoot string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	var old string
	if _, err := os.Stat(target); err == nil {
		old = filepath.Join(stageRoot, "replaced-"+uuid.NewString())
		if err := os.Rename(target, old); err != nil {
			return err
		}
	}
	if err := os.Rename(stage, target); err != nil {
		if old != "" {
			_ = os.Rename(old, target)
		}
		return err
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return syncDir(filepath.Dir(target))
}

// Partitions lists promoted partition paths relative to the table dir, sorted
// An unpartitioned table reports a single "" partition
func (t Table) Partitions() ([]string, error) {
	var out []string
	err := filepath.WalkDir(t.Dir(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != t.Dir() && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != FileName {
			return nil
		}
		rel, _ := filepath.Rel(t.Dir(), filepath.Dir(p))
		if rel == "." {
			rel = ""
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "list %s", t.Name)
	}
	sort.Strings(out)
	return out, nil
}

// Files returns the data files of every promoted partition
func (t Table) Files() ([]string, error) {
	parts, err := t.Partitions()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, filepath.Join(t.Dir(), filepath.FromSlash(p), FileName))
	}
	return out, nil
}

// ReadTable reads every promoted partition of t in partition order
func ReadTable[T any](ctx context.Context, t Table) ([]T, error) {
	var out []T
	err := ScanTable(ctx, t, func(_ string, rows []T) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

// ScanTable calls fn with batches of rows per promoted partition
func ScanTable[T any](ctx context.Context, t Table, fn func(part string, rows []T) error) error {
	parts, err := t.Partitions()
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(t.Dir(), filepath.FromSlash(p), FileName)
		if err := scanFile(path, func(rows []T) error { return fn(p, rows) }); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeIO, "read %s/%s", t.Name, p)
		}
	}
	return nil
}

// ReadFile reads one parquet file
func ReadFile[T any](path string) ([]T, error) {
	var out []T
	err := scanFile(path, func(rows []T) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

func scanFile[T any](path string, fn func([]T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := parquet.NewGenericReader[T](f)
	defer r.Close()
	buf := make([]T, readBatch)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
			buf = make([]T, readBatch)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// CleanStaging removes leftovers of interrupted writes
func (t Table) CleanStaging() error {
	return os.RemoveAll(filepath.Join(t.Dir(), StagingDir))
}

// WriteFileAtomic replaces path with data through a synced temp file and a rename
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "create temp for %s", path)
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "write %s", path)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "sync %s", path)
	}
	if err := tmp.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "close %s", path)
	}
	if err := os.Rename(name, path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "rename %s", path)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}

func checkPart(part string) error {
	if part == "" {
		return nil
	}
	for _, seg := range strings.Split(part, "/") {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" || v == "" || skipDir(seg) || seg == ".." {
			return perr.InvalidArgf("bad partition path %q", part)
		}
	}
	return nil
}

func stageName(part string) string {
	if part == "" {
		return "table"
	}
	return strings.ReplaceAll(part, "/", "__")
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
