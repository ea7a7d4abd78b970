// Package ndjson reads and writes newline-delimited JSON object streams.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 16 * 1024 * 1024
	previewLength     = 50
)

// Row is a single decoded NDJSON record. Numbers decode as json.Number.
type Row map[string]any

// Record pairs a decoded row with the exact bytes of its line.
type Record struct {
	Row Row
	Raw json.RawMessage
}

// RowError reports a line that could not be decoded as a JSON object.
type RowError struct {
	Line    int
	Preview string
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Could not parse row %q (line %d): %v", e.Preview, e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Option configures a Reader.
type Option func(*Reader)

// WithStrict controls whether a malformed row stops the read (true, the default)
// or is skipped and counted.
func WithStrict(strict bool) Option {
	return func(r *Reader) {
		r.strict = strict
	}
}

// Reader decodes one JSON object per line. Empty lines are ignored.
type Reader struct {
	scanner *bufio.Scanner
	strict  bool
	line    int
	row     Row
	raw     json.RawMessage
	err     error
	skipped int
}

// NewReader wraps r in a strict Reader unless overridden by opts.
func NewReader(r io.Reader, opts ...Option) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialBufferSize), maxLineSize)
	reader := &Reader{scanner: scanner, strict: true}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// Next advances to the next row. It returns false at end of input or on error;
// callers must check Err afterwards.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		row, err := decodeRow(raw)
		if err != nil {
			if !r.strict {
				r.skipped++
				continue
			}
			r.err = &RowError{Line: r.line, Preview: preview(raw), Err: err}
			return false
		}
		r.row = row
		r.raw = append(json.RawMessage(nil), raw...)
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("scan line %d: %w", r.line+1, err)
	}
	return false
}

// Row returns the row decoded by the last successful call to Next.
func (r *Reader) Row() Row {
	return r.row
}

// Raw returns the trimmed line behind the current row.
func (r *Reader) Raw() json.RawMessage {
	return r.raw
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Skipped returns the number of malformed rows dropped in non-strict mode.
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadAll drains r. In strict mode any malformed row discards the partial result.
func ReadAll(r io.Reader, opts ...Option) ([]Row, error) {
	records, err := readRecords(r, opts...)
	if err != nil {
		return nil, err
	}
	return rows(records), nil
}

// ReadFile reads every row from the file at path.
func ReadFile(path string, opts ...Option) ([]Row, error) {
	records, err := ReadFileRecords(path, opts...)
	if err != nil {
		return nil, err
	}
	return rows(records), nil
}

// ReadFileRecords reads every row from the file at path, keeping each line's bytes.
func ReadFileRecords(path string, opts ...Option) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	records, err := readRecords(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

func readRecords(r io.Reader, opts ...Option) ([]Record, error) {
	reader := NewReader(r, opts...)
	var records []Record
	for reader.Next() {
		records = append(records, Record{Row: reader.Row(), Raw: reader.Raw()})
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func rows(records []Record) []Row {
	if records == nil {
		return nil
	}
	out := make([]Row, len(records))
	for i, rec := range records {
		out[i] = rec.Row
	}
	return out
}

// decodeRow decodes a single JSON object, keeping numbers exact.
func decodeRow(raw []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("row is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON object")
	}
	return row, nil
}

// Writer encodes values as one JSON document per line.
type Writer struct {
	enc *json.Encoder
}

// NewWriter returns a Writer targeting w.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// Encode writes v followed by a newline.
func (w *Writer) Encode(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	return nil
}

// WriteFile writes rows to path, replacing any existing file.
func WriteFile(path string, rows []Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	w := NewWriter(f)
	for _, row := range rows {
		if err := w.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func preview(raw []byte) string {
	runes := []rune(string(raw))
	if len(runes) <= previewLength {
		return string(runes)
	}
	return string(runes[:previewLength]) + "..."
}
