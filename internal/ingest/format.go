package ingest

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/iago/contact-distributor/internal/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	mediaTypeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mediaTypeMSExcel     = "application/vnd.ms-excel"
	mediaTypeOctetStream = "application/octet-stream"
)

var zipMagic = []byte("PK\x03\x04")

var csvMediaTypes = map[string]struct{}{
	"text/csv":                    {},
	"application/csv":             {},
	"text/comma-separated-values": {},
	"text/x-csv":                  {},
	"application/x-csv":           {},
}

// DetectFormat picks a reader from the declared filename extension first and
// the declared media type second. Input matching neither is rejected.
func DetectFormat(filename, contentType string, data []byte) (Format, error) {
	isZip := bytes.HasPrefix(data, zipMagic)

	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		// legacy BIFF workbooks are not supported, only OOXML saved as .xls
		if isZip {
			return FormatXLSX, nil
		}
		return "", unsupported("legacy .xls workbooks are not supported, save as .xlsx or .csv")
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if _, ok := csvMediaTypes[mediaType]; ok {
		return FormatCSV, nil
	}
	switch mediaType {
	case mediaTypeXLSX:
		return FormatXLSX, nil
	case mediaTypeMSExcel:
		// browsers on Windows send this for .csv files too
		if isZip {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	case mediaTypeOctetStream:
		if isZip {
			return FormatXLSX, nil
		}
	}

	return "", unsupported(fmt.Sprintf("file %q with content type %q is neither CSV nor a spreadsheet", filename, contentType))
}

func unsupported(message string) error {
	return domain.NewError(domain.KindUnsupportedFileType, opParse, fmt.Errorf("%s", message))
}
