/*
rows.go - Tabular payload decoding

PURPOSE:

	Turns an uploaded batch payload into logical rows. Two formats are
	accepted, chosen by filename extension:
	  .csv          encoding/csv
	  .xlsx/.xlsm   excelize (first sheet)

COLUMN SCHEMA:

	vantage_username  required   external referral key
	amount            required   source event amount
	income_type       optional   DAILY/WEEKLY/MONTHLY, defaults to DAILY

FAILURE MODEL:

	Decoding fails as a whole ONLY for structural problems: unreadable
	payload, or a header missing a mandatory column. Bad values inside a row
	are NOT decoding errors - rows carry raw cell text, and the ingester
	validates per row so one malformed row never aborts the batch.
*/
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Mandatory header columns.
const (
	columnVantageKey = "vantage_username"
	columnAmount     = "amount"
	columnCategory   = "income_type"
)

// ErrStructural marks a payload the ingester cannot even begin to process.
var ErrStructural = errors.New("unprocessable batch payload")

// Row is one decoded source event, values still raw.
type Row struct {
	// Number is the 1-based line in the source file, header included, so
	// error messages match what the submitter sees in their spreadsheet.
	Number     int
	VantageKey string
	Amount     string
	Category   string
}

// StructuralError wraps the reason an entire payload was rejected. When the
// payload parsed far enough to count its data rows, Rows carries that count
// so the job report can mark every one of them as errored.
type StructuralError struct {
	Reason string
	Rows   int
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// =============================================================================
// DECODING
// =============================================================================

// DecodeRows parses a payload into rows. The filename selects the format.
func DecodeRows(filename string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return decodeCSV(r)
	case ".xlsx", ".xlsm":
		return decodeXLSX(r)
	default:
		return nil, &StructuralError{Reason: fmt.Sprintf("unsupported file type %q (want .csv or .xlsx)", filepath.Ext(filename))}
	}
}

func decodeCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows surface as row errors, not here
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &StructuralError{Reason: "reading csv", Err: err}
	}
	return fromRecords(records)
}

func decodeXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &StructuralError{Reason: "reading workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &StructuralError{Reason: "workbook has no sheets"}
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &StructuralError{Reason: fmt.Sprintf("reading sheet %q", sheets[0]), Err: err}
	}
	return fromRecords(records)
}

// fromRecords maps raw cell rows onto the logical schema using the header.
func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, &StructuralError{Reason: "payload is empty"}
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, required := range []string{columnVantageKey, columnAmount} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &StructuralError{
			Reason: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
			Rows:   len(records) - 1,
		}
	}

	categoryIdx, ok := columns[columnCategory]
	if !ok {
		categoryIdx = -1
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		rows = append(rows, Row{
			Number:     i + 2, // +1 for the header, +1 for 1-based numbering
			VantageKey: cell(record, columns[columnVantageKey]),
			Amount:     cell(record, columns[columnAmount]),
			Category:   cell(record, categoryIdx),
		})
	}
	return rows, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
