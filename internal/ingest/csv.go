package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/iago/contact-distributor/internal/domain"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type csvSource struct {
	reader *csv.Reader
	// row is the last record's position counting empty lines, like a
	// spreadsheet row number; endLine is the physical line it ended on.
	row     int
	endLine int
}

func newCSVSource(data []byte) (*csvSource, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, domain.NewError(domain.KindEncodingError, opParse, err)
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return &csvSource{reader: reader}, nil
}

func (s *csvSource) Next() (sourceRow, bool, error) {
	record, err := s.reader.Read()
	if err == nil {
		start, _ := s.reader.FieldPos(0)
		end := start
		for _, field := range record {
			end += strings.Count(field, "\n")
		}
		return sourceRow{fields: record, line: s.advance(start, end)}, true, nil
	}
	if errors.Is(err, io.EOF) {
		return sourceRow{}, false, nil
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		line := s.advance(parseErr.StartLine, parseErr.Line)
		return sourceRow{line: line}, true, fmt.Errorf("%w: %v", errRowMalformed, parseErr)
	}
	return sourceRow{}, false, err
}

// advance counts the empty lines encoding/csv skipped before a record that
// spans physical lines start to end. A record with embedded newlines still
// counts as one row.
func (s *csvSource) advance(start, end int) int {
	s.row += 1 + max(0, start-s.endLine-1)
	s.endLine = max(end, start)
	return s.row
}

func (s *csvSource) StrictWidth() bool {
	return true
}

func (s *csvSource) Close() error {
	return nil
}

// decodeText strips a UTF-8 BOM and transcodes UTF-16 input that starts with
// a BOM. Anything else passes through untouched so invalid UTF-8 can still be
// reported per row.
func decodeText(data []byte) ([]byte, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return nil, fmt.Errorf("decode text: %w", err)
	}
	return decoded, nil
}
