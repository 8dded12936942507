package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ReadCSV reads question rows from the first sheet exported as CSV. The
// header row and fully blank rows are skipped. A malformed record becomes an
// invalid placeholder row so the rest of the file still loads.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []Row
	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("read csv: %w", err)
			}
			if header {
				return nil, fmt.Errorf("read csv header: %w", err)
			}
			rows = append(rows, Row{
				Line:   pe.StartLine,
				Text:   fmt.Sprintf("Error parsing row %d", pe.StartLine),
				Status: Invalid(pe.Err.Error()),
			})
			continue
		}
		if header {
			header = false
			continue
		}
		if IsBlank(rec) {
			continue
		}
		start, _ := cr.FieldPos(0)
		rows = append(rows, ParseRow(start, rec))
	}
	return rows, nil
}

var csvHeader = []string{"Question", "Type", "Marks", "Difficulty", "Bloom", "Keywords", "Unit"}

// WriteCSV writes rows in the column order ReadCSV expects, with the unit
// name as a trailing column that imports ignore.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		rec := []string{r.Text, r.Type, strconv.Itoa(r.Marks), r.Difficulty, r.BloomLevel, r.Keywords, r.Unit}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", r.Line, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
