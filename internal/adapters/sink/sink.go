// Package sink appends quarantined records and precedence conflicts to JSON lines files
package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	perr "visawh/internal/platform/errors"
)

// Reject is a record that failed coercion or identity resolution
type Reject struct {
	Domain     string         `json:"domain"`
	Period     string         `json:"period"`
	SourceFile string         `json:"source_file"`
	Row        int            `json:"row"`
	Code       perr.ErrorCode `json:"code"`
	Field      string         `json:"field,omitempty"`
	Message    string         `json:"message"`
}

// RejectOf builds a Reject from a coercion or resolution error
func RejectOf(domain, period, source string, row int, err error) Reject {
	w := perr.WireFrom(err)
	return Reject{
		Domain:     domain,
		Period:     period,
		SourceFile: source,
		Row:        row,
		Code:       w.Code,
		Field:      w.Field,
		Message:    err.Error(),
	}
}

// Conflict records the rows of one source file that lost a primary key to another
type Conflict struct {
	Table        string `json:"table"`
	Key          string `json:"key"`
	WinnerSource string `json:"winner_source"`
	WinnerRow    int    `json:"winner_row"`
	LoserSource  string `json:"loser_source"`
	LoserRows    int    `json:"loser_rows"`
	Precedence   string `json:"precedence"`
}

// Sink is an append-only JSON lines file safe for concurrent writers
type Sink[T any] struct {
	mu   sync.Mutex
	path string
	f    *os.File
	bw   *bufio.Writer
	enc  *json.Encoder
}

// Open creates (truncating) the sink file at path
func Open[T any](path string) (*Sink[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "sink dir %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "sink %s", path)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	return &Sink[T]{path: path, f: f, bw: bw, enc: json.NewEncoder(bw)}, nil
}

// Path is the backing file
func (s *Sink[T]) Path() string { return s.path }

// Write appends one entry
func (s *Sink[T]) Write(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return perr.IOf("sink %s is closed", s.path)
	}
	if err := s.enc.Encode(v); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "sink %s", s.path)
	}
	return nil
}

// Close flushes, syncs and closes the file; it is safe to call twice
func (s *Sink[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := errors.Join(s.bw.Flush(), s.f.Sync(), s.f.Close())
	s.f = nil
	return perr.WrapIf(err, perr.ErrorCodeIO, "close sink")
}

// ReadAll decodes every entry of a sink file
func ReadAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "open %s", path)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	var out []T
	for {
		var v T
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, perr.Wrapf(err, perr.ErrorCodeIO, "decode %s", path)
		}
		out = append(out, v)
	}
}
