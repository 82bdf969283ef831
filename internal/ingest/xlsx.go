package ingest

import (
	"bytes"
	"fmt"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/xuri/excelize/v2"
)

// xlsxSource reads the first worksheet of an OOXML workbook.
type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	row  int
}

func newXLSXSource(data []byte) (*xlsxSource, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewError(domain.KindUnsupportedFileType, opParse, fmt.Errorf("open spreadsheet: %w", err))
	}

	source := &xlsxSource{file: file}
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return source, nil
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		_ = file.Close()
		return nil, domain.NewError(domain.KindUnsupportedFileType, opParse, fmt.Errorf("read sheet %q: %w", sheets[0], err))
	}
	source.rows = rows
	return source, nil
}

// Next yields every sheet row up to the last used one, empty rows included,
// so line matches the row number shown by spreadsheet editors.
func (s *xlsxSource) Next() (sourceRow, bool, error) {
	if s.rows == nil {
		return sourceRow{}, false, nil
	}
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return sourceRow{}, false, fmt.Errorf("iterate rows: %w", err)
		}
		return sourceRow{}, false, nil
	}
	s.row++
	columns, err := s.rows.Columns()
	if err != nil {
		return sourceRow{line: s.row}, true, fmt.Errorf("%w: %v", errRowMalformed, err)
	}
	return sourceRow{fields: columns, line: s.row}, true, nil
}

func (s *xlsxSource) StrictWidth() bool {
	return false
}

func (s *xlsxSource) Close() error {
	if s.rows != nil {
		_ = s.rows.Close()
	}
	return s.file.Close()
}
