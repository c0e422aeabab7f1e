package imap

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"datimsync/pkg/period"
	"datimsync/pkg/syncerr"
)

// FieldNames are the columns every I-MAP row must carry, in display order.
var FieldNames = []string{
	"DATIM_Indicator_Category",
	"DATIM_Indicator_ID",
	"DATIM_Disag_ID",
	"DATIM_Disag_Name",
	"Operation",
	"MOH_Indicator_ID",
	"MOH_Indicator_Name",
	"MOH_Disag_ID",
	"MOH_Disag_Name",
}

type Format string

const (
	FormatCSV  Format = "CSV"
	FormatJSON Format = "JSON"
)

// ParseFormat matches s case-insensitively and falls back to CSV.
func ParseFormat(s string) Format {
	for _, f := range []Format{FormatCSV, FormatJSON} {
		if strings.EqualFold(s, string(f)) {
			return f
		}
	}
	return FormatCSV
}

// Row is one indicator mapping line keyed by column name.
type Row map[string]string

// Imap is a country's set of indicator mappings for one period.
type Imap struct {
	CountryCode string
	CountryOrg  string
	Period      string
	Rows        []Row
}

// LoadCSV reads an I-MAP from CSV with a header line. Rows are not
// validated here.
func LoadCSV(r io.Reader, countryCode, countryOrg, p string) (*Imap, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &syncerr.ValidationError{Msg: "empty I-MAP input"}
		}
		return nil, &syncerr.UnreadableInputError{Source: "imap:csv", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	m := &Imap{CountryCode: countryCode, CountryOrg: countryOrg, Period: p}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &syncerr.UnreadableInputError{Source: "imap:csv", Err: err}
		}
		row := Row{}
		for i, v := range rec {
			if i < len(header) {
				row[header[i]] = v
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

// Validate checks the period and that every row has every required field.
// The first missing field is reported with its 1-based row number.
func (m *Imap) Validate(allowedPeriods []string) error {
	if m.Period != "" {
		if err := period.Validate(m.Period, allowedPeriods); err != nil {
			return err
		}
	}
	if len(m.Rows) == 0 {
		return &syncerr.ValidationError{Msg: "I-MAP has no rows"}
	}
	for i, row := range m.Rows {
		for _, f := range FieldNames {
			if _, ok := row[f]; !ok {
				return &syncerr.ValidationError{Field: f, Row: i + 1, Msg: fmt.Sprintf("Missing field '%s' on row %d", f, i+1)}
			}
		}
	}
	return nil
}

// Display writes the rows as CSV with the standard header or as a JSON array.
func (m *Imap) Display(w io.Writer, f Format) error {
	if f == FormatJSON {
		rows := m.Rows
		if rows == nil {
			rows = []Row{}
		}
		return json.NewEncoder(w).Encode(rows)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(FieldNames); err != nil {
		return err
	}
	for _, row := range m.Rows {
		rec := make([]string, len(FieldNames))
		for i, name := range FieldNames {
			rec[i] = row[name]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
