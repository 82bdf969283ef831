// Package ingest turns uploaded CSV or spreadsheet bytes into contact candidates.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iago/contact-distributor/internal/domain"
)

const (
	DefaultMaxBytes = 10 << 20

	opParse = "parse"

	columnFirstName = "firstname"
	columnPhone     = "phone"
	columnNotes     = "notes"

	minPhoneDigits = 7

	// rows between cancellation checks
	ctxCheckInterval = 256
)

// Input is one uploaded file. ContentType and Filename are whatever the
// caller declared; either one is enough to select a format.
type Input struct {
	Data        []byte
	ContentType string
	Filename    string
}

type Result struct {
	Candidates []domain.ContactCandidate
	RowErrors  []domain.RowError
}

// Rows returns the number of data rows that produced a candidate or an error.
func (r Result) Rows() int {
	return len(r.Candidates) + len(r.RowErrors)
}

type Parser struct {
	maxBytes int64
}

func NewParser(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{maxBytes: maxBytes}
}

func (p *Parser) MaxBytes() int64 {
	return p.maxBytes
}

// Parse validates the whole file and returns candidates and row errors in
// input order. Whole-file problems are returned as *domain.Error.
func (p *Parser) Parse(ctx context.Context, input Input) (Result, error) {
	if int64(len(input.Data)) > p.maxBytes {
		return Result{}, domain.NewError(domain.KindFileTooLarge, opParse,
			fmt.Errorf("file is %d bytes, limit is %d", len(input.Data), p.maxBytes))
	}

	format, err := DetectFormat(input.Filename, input.ContentType, input.Data)
	if err != nil {
		return Result{}, err
	}

	var source rowSource
	switch format {
	case FormatCSV:
		source, err = newCSVSource(input.Data)
	case FormatXLSX:
		source, err = newXLSXSource(input.Data)
	}
	if err != nil {
		return Result{}, err
	}
	defer source.Close()

	return parseRows(ctx, source)
}

// rowSource yields raw records, header first. strictWidth sources report
// records whose field count differs from the header as malformed; the
// spreadsheet source omits trailing empty cells, so it pads instead.
type rowSource interface {
	Next() (row sourceRow, ok bool, err error)
	StrictWidth() bool
	Close() error
}

// sourceRow is one record and its 1-based row in the file. Empty lines and
// empty sheet rows are counted, so data rows are numbered from the header
// the same way for both formats.
type sourceRow struct {
	fields []string
	line   int
}

// errRowMalformed is returned by a source for a record it could not tokenize.
// The source must still advance past that record.
var errRowMalformed = errors.New("malformed row")

type columnIndex struct {
	firstName int
	phone     int
	notes     int
	width     int
}

func parseRows(ctx context.Context, source rowSource) (Result, error) {
	result := Result{
		Candidates: make([]domain.ContactCandidate, 0),
		RowErrors:  make([]domain.RowError, 0),
	}

	var header sourceRow
	for {
		row, ok, err := source.Next()
		if err != nil {
			if errors.Is(err, errRowMalformed) {
				return Result{}, domain.NewError(domain.KindSchemaMissingColumns, opParse, fmt.Errorf("header row could not be read"))
			}
			return Result{}, domain.NewError(domain.KindInternal, opParse, err)
		}
		if !ok {
			// an empty file distributes zero contacts
			return result, nil
		}
		if !isBlank(row.fields) {
			header = row
			break
		}
	}

	columns, err := resolveColumns(header.fields)
	if err != nil {
		return Result{}, err
	}

	for read := 1; ; read++ {
		if read%ctxCheckInterval == 1 {
			if err := ctx.Err(); err != nil {
				return Result{}, contextError(err)
			}
		}

		row, ok, err := source.Next()
		position := row.line - header.line
		if err != nil {
			if errors.Is(err, errRowMalformed) {
				result.RowErrors = append(result.RowErrors, domain.RowError{SourceRow: position, Reason: domain.RowErrorMalformedRow})
				continue
			}
			return Result{}, domain.NewError(domain.KindInternal, opParse, fmt.Errorf("read record %d: %w", read, err))
		}
		if !ok {
			break
		}
		if isBlank(row.fields) {
			continue
		}

		candidate, reason := buildCandidate(position, row.fields, columns, source.StrictWidth())
		if reason != "" {
			result.RowErrors = append(result.RowErrors, domain.RowError{SourceRow: position, Reason: reason})
			continue
		}
		result.Candidates = append(result.Candidates, candidate)
	}

	return result, nil
}

func resolveColumns(header []string) (columnIndex, error) {
	columns := columnIndex{firstName: -1, phone: -1, notes: -1, width: len(header)}
	for index, raw := range header {
		if !utf8.ValidString(raw) {
			return columnIndex{}, domain.NewError(domain.KindEncodingError, opParse, fmt.Errorf("header is not valid UTF-8"))
		}
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		switch {
		case name == columnFirstName && columns.firstName < 0:
			columns.firstName = index
		case name == columnPhone && columns.phone < 0:
			columns.phone = index
		case name == columnNotes && columns.notes < 0:
			columns.notes = index
		}
	}

	missing := make([]string, 0, 2)
	if columns.firstName < 0 {
		missing = append(missing, "FirstName")
	}
	if columns.phone < 0 {
		missing = append(missing, "Phone")
	}
	if len(missing) > 0 {
		return columnIndex{}, domain.NewError(domain.KindSchemaMissingColumns, opParse,
			fmt.Errorf("missing columns: %s", strings.Join(missing, ", ")))
	}
	return columns, nil
}

func buildCandidate(
	row int,
	fields []string,
	columns columnIndex,
	strictWidth bool,
) (domain.ContactCandidate, domain.RowErrorReason) {
	if strictWidth && len(fields) != columns.width {
		return domain.ContactCandidate{}, domain.RowErrorMalformedRow
	}
	if len(fields) > columns.width && !isBlank(fields[columns.width:]) {
		return domain.ContactCandidate{}, domain.RowErrorMalformedRow
	}
	for _, field := range fields {
		if !utf8.ValidString(field) {
			return domain.ContactCandidate{}, domain.RowErrorEncoding
		}
	}

	firstName := fieldAt(fields, columns.firstName)
	if firstName == "" {
		return domain.ContactCandidate{}, domain.RowErrorMissingFirstName
	}
	phone, ok := NormalizePhone(fieldAt(fields, columns.phone))
	if !ok {
		return domain.ContactCandidate{}, domain.RowErrorInvalidPhone
	}

	return domain.ContactCandidate{
		FirstName: firstName,
		Phone:     phone,
		Notes:     fieldAt(fields, columns.notes),
		SourceRow: row,
	}, ""
}

// NormalizePhone strips everything but digits and prefixes "+". Values with
// fewer than seven digits are rejected.
func NormalizePhone(raw string) (string, bool) {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) < minPhoneDigits {
		return "", false
	}
	return "+" + string(digits), true
}

func fieldAt(fields []string, index int) string {
	if index < 0 || index >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[index])
}

func isBlank(fields []string) bool {
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, opParse, err)
	}
	return domain.NewError(domain.KindInternal, opParse, err)
}
