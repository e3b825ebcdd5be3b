package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"visawh/internal/core/normalize"
	perr "visawh/internal/platform/errors"
	"visawh/internal/platform/logger"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	sniffSize     = 64 * 1024
	ctxCheckEvery = 4096
)

// Record is one raw row; the header slice is shared across records of an extract and
// must not be modified
type Record struct {
	Domain     string
	Period     Period
	SourceFile string
	Row        int // 1-based data row, header excluded
	Columns    []string
	Values     []string
}

// Get returns the value at column i, or "" for ragged rows
func (r Record) Get(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Reader streams records from one extract
type Reader struct {
	ex       Extract
	closers  []io.Closer
	csv      *csv.Reader
	header   []string
	row      int
	err      error
	Encoding string // utf-8, utf-16, windows-1252
	Delim    rune
}

// Open opens an extract, unwraps compression, fixes the text encoding and reads the header
func Open(ctx context.Context, ex Extract) (*Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(ex.Path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "open %s", ex.Rel)
	}
	rd := &Reader{ex: ex, closers: []io.Closer{f}}

	var src io.Reader = f
	switch lower := strings.ToLower(ex.Name); {
	case strings.HasSuffix(lower, ".gz"):
		gz, gerr := gzip.NewReader(f)
		if gerr != nil {
			rd.Close()
			return nil, perr.Wrapf(gerr, perr.ErrorCodeIO, "gzip %s", ex.Rel)
		}
		rd.closers = append(rd.closers, gz)
		src = gz
	case strings.HasSuffix(lower, ".zst"):
		zr, zerr := zstd.NewReader(f)
		if zerr != nil {
			rd.Close()
			return nil, perr.Wrapf(zerr, perr.ErrorCodeIO, "zstd %s", ex.Rel)
		}
		rc := zr.IOReadCloser()
		rd.closers = append(rd.closers, rc)
		src = rc
	}

	br := bufio.NewReaderSize(src, sniffSize)
	peek, perrPeek := br.Peek(sniffSize)
	if perrPeek != nil && !errors.Is(perrPeek, io.EOF) && !errors.Is(perrPeek, bufio.ErrBufferFull) {
		rd.Close()
		return nil, perr.Wrapf(perrPeek, perr.ErrorCodeIO, "read %s", ex.Rel)
	}

	text, enc := decode(br, peek)
	rd.Encoding = enc

	delim := sniffDelimiter(ex.Name, peek)
	rd.Delim = delim

	cr := csv.NewReader(text)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	rd.csv = cr

	for {
		rec, rerr := cr.Read()
		if rerr == io.EOF {
			rd.Close()
			return nil, perr.IOf("%s: no header row", ex.Rel)
		}
		if rerr != nil {
			rd.Close()
			return nil, perr.Wrapf(rerr, perr.ErrorCodeIO, "header %s", ex.Rel)
		}
		if blank(rec) {
			continue
		}
		rd.header = cleanHeader(rec)
		break
	}

	logger.C(ctx).Debug().
		Str("file", ex.Rel).
		Str("encoding", enc).
		Str("delim", string(delim)).
		Int("columns", len(rd.header)).
		Msg("source: opened")
	return rd, nil
}

// Header returns the cleaned header row
func (rd *Reader) Header() []string { return rd.header }

// Extract returns the extract being read
func (rd *Reader) Extract() Extract { return rd.ex }

// Rows returns the number of data rows yielded so far
func (rd *Reader) Rows() int { return rd.row }

// Next returns the next non-blank record or io.EOF
func (rd *Reader) Next(ctx context.Context) (Record, error) {
	if rd.err != nil {
		return Record{}, rd.err
	}
	for {
		if rd.row%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				rd.err = err
				return Record{}, err
			}
		}
		vals, err := rd.csv.Read()
		if err == io.EOF {
			rd.err = io.EOF
			return Record{}, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && vals != nil {
				// lazy quotes still surface bare-quote errors on some rows; keep the fields we got
				logger.C(ctx).Warn().Err(err).Str("file", rd.ex.Rel).Msg("source: malformed row kept")
			} else {
				rd.err = perr.Wrapf(err, perr.ErrorCodeIO, "read %s", rd.ex.Rel)
				return Record{}, rd.err
			}
		}
		if blank(vals) {
			continue
		}
		rd.row++
		for i, v := range vals {
			vals[i] = strings.TrimSpace(normalize.Sanitize(v))
		}
		return Record{
			Domain:     rd.ex.Domain,
			Period:     rd.ex.Period,
			SourceFile: rd.ex.Rel,
			Row:        rd.row,
			Columns:    rd.header,
			Values:     vals,
		}, nil
	}
}

// Close releases the file and any decompressor, innermost first
func (rd *Reader) Close() error {
	var errs []error
	for i := len(rd.closers) - 1; i >= 0; i-- {
		if err := rd.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rd.closers = nil
	return errors.Join(errs...)
}

// decode picks the text encoding from a BOM or, failing that, UTF-8 validity of the sniff window
func decode(br *bufio.Reader, peek []byte) (io.Reader, string) {
	switch {
	case bytes.HasPrefix(peek, []byte{0xEF, 0xBB, 0xBF}):
		_, _ = br.Discard(3)
		return br, "utf-8"
	case bytes.HasPrefix(peek, []byte{0xFF, 0xFE}), bytes.HasPrefix(peek, []byte{0xFE, 0xFF}):
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		return transform.NewReader(br, dec), "utf-16"
	}
	if validUTF8Prefix(peek) {
		return br, "utf-8"
	}
	return transform.NewReader(br, charmap.Windows1252.NewDecoder()), "windows-1252"
}

// validUTF8Prefix ignores a rune cut off at the end of the sniff window
func validUTF8Prefix(b []byte) bool {
	for cut := 0; cut < utf8.UTFMax && cut <= len(b); cut++ {
		if utf8.Valid(b[:len(b)-cut]) {
			return true
		}
	}
	return false
}

// sniffDelimiter trusts .tsv, otherwise counts candidates on the first line outside quotes
func sniffDelimiter(name string, peek []byte) rune {
	lower := strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(name), ".gz"), ".zst")
	if strings.HasSuffix(lower, ".tsv") {
		return '\t'
	}
	line := peek
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		line = peek[:i]
	}
	counts := map[byte]int{}
	inQuote := false
	for _, c := range line {
		switch {
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ',' || c == '\t' || c == '|' || c == ';'):
			counts[c]++
		}
	}
	best, bestN := byte(','), 0
	for _, c := range []byte{',', '\t', '|', ';'} {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return rune(best)
}

func cleanHeader(rec []string) []string {
	out := make([]string, len(rec))
	for i, h := range rec {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.TrimSpace(normalize.Sanitize(h))
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
