package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	readBufferSize = 64 * 1024
	encodingProbe  = 4096
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVParser reads a headed CSV table row by row. Header names are normalised
// to lower case without surrounding whitespace so that "ArchiveId" and
// "archiveid" address the same column.
type CSVParser struct {
	reader    *csv.Reader
	trimSpace bool
	headers   []string
	index     map[string]int
	line      int
	rows      int
}

// ParserOption configures a CSVParser
type ParserOption func(*parserOptions)

type parserOptions struct {
	delimiter  rune
	lazyQuotes bool
	trimSpace  bool
}

// WithDelimiter sets the field delimiter (default is comma)
func WithDelimiter(d rune) ParserOption {
	return func(o *parserOptions) { o.delimiter = d }
}

// WithLazyQuotes toggles lenient quote handling (default on)
func WithLazyQuotes(lazy bool) ParserOption {
	return func(o *parserOptions) { o.lazyQuotes = lazy }
}

// WithTrimSpace trims values. Off by default: descriptions are passthrough data.
func WithTrimSpace(trim bool) ParserOption {
	return func(o *parserOptions) { o.trimSpace = trim }
}

// NewCSVParser wraps r. A leading UTF-8 BOM is skipped and input whose first
// block is not UTF-8 is rejected with ErrInvalidEncoding.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	o := parserOptions{delimiter: ',', lazyQuotes: true}
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReaderSize(r, readBufferSize)
	if err := skipBOM(br); err != nil {
		return nil, err
	}
	if err := probeEncoding(br); err != nil {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.Comma = o.delimiter
	reader.LazyQuotes = o.lazyQuotes
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	return &CSVParser{
		reader:    reader,
		trimSpace: o.trimSpace,
		index:     make(map[string]int),
	}, nil
}

func skipBOM(br *bufio.Reader) error {
	head, err := br.Peek(len(utf8BOM))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return nil
}

// probeEncoding checks that the first block of content is valid UTF-8
func probeEncoding(br *bufio.Reader) error {
	content, err := br.Peek(encodingProbe)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	if len(content) == encodingProbe {
		content = trimPartialRune(content)
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

// trimPartialRune drops a multi-byte rune cut off at the end of b
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if utf8.RuneStart(b[start]) {
			if !utf8.FullRune(b[start:]) {
				return b[:start]
			}
			break
		}
	}
	return b
}

// ParseHeader reads the header row
func (p *CSVParser) ParseHeader() error {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if len(record) == 0 {
		return ErrMissingHeader
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		name := NormalizeHeader(h)
		p.headers[i] = name
		if _, dup := p.index[name]; !dup {
			p.index[name] = i
		}
	}
	p.line = 1
	return nil
}

// NormalizeHeader lower-cases and trims a header name
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Headers returns the normalised header names in file order
func (p *CSVParser) Headers() []string {
	return p.headers
}

// HasHeader reports whether the table has a column called name
func (p *CSVParser) HasHeader(name string) bool {
	_, ok := p.index[NormalizeHeader(name)]
	return ok
}

// ValidateHeaders returns the required headers that are missing
func (p *CSVParser) ValidateHeaders(required []string) []string {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// Row is one data row. It is only valid until the next read.
type Row struct {
	LineNumber int
	values     []string
	index      map[string]int
}

// Get returns the value of column header, "" when the row is short or the column unknown
func (r *Row) Get(header string) string {
	i, ok := r.index[header]
	if !ok || i >= len(r.values) {
		return ""
	}
	return r.values[i]
}

// IsEmpty reports whether every value is blank
func (r *Row) IsEmpty() bool {
	for _, v := range r.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadRow reads the next row. It returns io.EOF after the last row.
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	p.line++
	if err != nil {
		return nil, NewRowError(p.line, "", ErrCodeImportCSVParsing, err.Error())
	}
	p.rows++

	if p.trimSpace {
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
	}
	return &Row{LineNumber: p.line, values: record, index: p.index}, nil
}

// Each calls fn for every non-empty row until EOF or the first error
func (p *CSVParser) Each(fn func(*Row) error) error {
	for {
		row, err := p.ReadRow()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if row.IsEmpty() {
			continue
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// Line returns the file line of the last row read (the header is line 1)
func (p *CSVParser) Line() int {
	return p.line
}

// TotalRows returns the number of data rows read so far
func (p *CSVParser) TotalRows() int {
	return p.rows
}
