// Package csvfile implements source.Accessor over a delimited text file.
//
// The whole file is read once into per-column vectors; counts, samples and
// aggregates are then answered from memory. That keeps the accessor safe
// for concurrent reads (it is immutable after Open) and deterministic
// across repeated profiling runs of an unchanged file.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"dataprofiler/internal/source"
)

// Options control parsing of the input file.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// NoHeader treats the first record as data; columns are then named
	// col_1, col_2, ...
	NoHeader bool

	// LazyQuotes is passed through to encoding/csv.
	LazyQuotes bool

	// Charset selects an input encoding. "" or "utf-8" reads bytes as-is;
	// "latin1"/"iso-8859-1" and "windows-1252"/"cp1252" are decoded via
	// x/text before parsing. Anything else is an error.
	Charset string
}

// Accessor is an immutable, fully loaded CSV column store.
type Accessor struct {
	columns []source.Column
	index   map[string]int

	rows int64
	// values[c][r] is the trimmed raw value; null[c][r] marks empties,
	// which delimited sources have no other way to express NULL with.
	values [][]string
	null   [][]bool
}

var _ source.Accessor = (*Accessor)(nil)

// Open reads and parses the file at path.
func Open(path string, opt Options) (*Accessor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvfile: %w", err)
	}
	defer f.Close()
	return New(f, opt)
}

// New reads and parses CSV from r until EOF.
//
// Records with a field count different from the header are skipped, the
// same best-effort policy used when sampling unknown files: a stray bad
// line must not fail the whole profiling run.
func New(r io.Reader, opt Options) (*Accessor, error) {
	if opt.Comma == 0 {
		opt.Comma = ','
	}

	dec, err := decoderFor(opt.Charset)
	if err != nil {
		return nil, err
	}
	if dec != nil {
		r = transform.NewReader(r, dec)
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Comma
	cr.FieldsPerRecord = -1 // validated manually
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true

	first, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csvfile: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("csvfile: read header: %w", err)
	}

	var names []string
	var pending [][]string
	if opt.NoHeader {
		names = make([]string, len(first))
		for i := range names {
			names[i] = fmt.Sprintf("col_%d", i+1)
		}
		pending = append(pending, append([]string(nil), first...))
	} else {
		names = make([]string, len(first))
		for i, h := range first {
			names[i] = strings.TrimSpace(h)
		}
	}

	a := &Accessor{
		columns: make([]source.Column, len(names)),
		index:   make(map[string]int, len(names)),
		values:  make([][]string, len(names)),
		null:    make([][]bool, len(names)),
	}
	for i, n := range names {
		a.columns[i] = source.Column{Name: n}
		a.index[n] = i
	}

	appendRow := func(rec []string) {
		if len(rec) != len(names) {
			return
		}
		for c := range rec {
			v := strings.TrimSpace(rec[c])
			a.values[c] = append(a.values[c], v)
			a.null[c] = append(a.null[c], v == "")
		}
		a.rows++
	}

	for _, rec := range pending {
		appendRow(rec)
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvfile: read row %d: %w", a.rows+1, err)
		}
		appendRow(rec)
	}

	return a, nil
}

func decoderFor(charset string) (transform.Transformer, error) {
	var enc *charmap.Charmap
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "iso-8859-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("csvfile: unsupported charset %q", charset)
	}
	var e encoding.Encoding = enc
	return e.NewDecoder(), nil
}

// Columns implements source.Accessor.
func (a *Accessor) Columns(ctx context.Context) ([]source.Column, error) {
	out := make([]source.Column, len(a.columns))
	copy(out, a.columns)
	return out, nil
}

// RowCount implements source.Accessor.
func (a *Accessor) RowCount(ctx context.Context) (int64, error) {
	return a.rows, nil
}

func (a *Accessor) col(column string) (int, error) {
	ix, ok := a.index[column]
	if !ok {
		return 0, fmt.Errorf("csvfile: column %q: %w", column, source.ErrNoColumn)
	}
	return ix, nil
}

// NullCount implements source.Accessor. Empty fields count as NULL.
func (a *Accessor) NullCount(ctx context.Context, column string) (int64, error) {
	c, err := a.col(column)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, isNull := range a.null[c] {
		if isNull {
			n++
		}
	}
	return n, nil
}

// DistinctCount implements source.Accessor.
func (a *Accessor) DistinctCount(ctx context.Context, column string) (int64, error) {
	c, err := a.col(column)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for r, v := range a.values[c] {
		if a.null[c][r] {
			continue
		}
		seen[v] = struct{}{}
	}
	return int64(len(seen)), nil
}

// Sample implements source.Accessor: the first n non-null values in row
// order, deterministic for an unchanged file.
func (a *Accessor) Sample(ctx context.Context, column string, n int) ([]string, error) {
	c, err := a.col(column)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for r, v := range a.values[c] {
		if a.null[c][r] {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// Aggregate implements source.Accessor for numeric columns: values that do
// not parse as floats are skipped, matching SQL aggregate NULL semantics.
// A column with no parseable values returns "".
func (a *Accessor) Aggregate(ctx context.Context, column string, op source.AggOp) (string, error) {
	c, err := a.col(column)
	if err != nil {
		return "", err
	}

	var (
		seen bool
		min  float64
		max  float64
		sum  float64
		n    int64
	)
	for r, v := range a.values[c] {
		if a.null[c][r] {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		if !seen || f < min {
			min = f
		}
		if !seen || f > max {
			max = f
		}
		seen = true
		sum += f
		n++
	}
	if !seen {
		return "", nil
	}

	var out float64
	switch op {
	case source.AggMin:
		out = min
	case source.AggMax:
		out = max
	case source.AggMean:
		out = sum / float64(n)
	default:
		return "", fmt.Errorf("csvfile: unsupported aggregate %q", op)
	}
	return strconv.FormatFloat(out, 'g', -1, 64), nil
}

// Scan implements source.Accessor.
func (a *Accessor) Scan(ctx context.Context, column string, fn func(value string, null bool) error) error {
	c, err := a.col(column)
	if err != nil {
		return err
	}
	for r, v := range a.values[c] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(v, a.null[c][r]); err != nil {
			return err
		}
	}
	return nil
}

// Close implements source.Accessor. The store is in-memory; nothing to do.
func (a *Accessor) Close() error { return nil }
