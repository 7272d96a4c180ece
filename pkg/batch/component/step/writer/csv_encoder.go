package writer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// CSVEncoder writes a header line followed by one line per row. Nulls are empty cells.
type CSVEncoder struct{}

func (e *CSVEncoder) Extension() string   { return "csv" }
func (e *CSVEncoder) ContentType() string { return "text/csv" }

func (e *CSVEncoder) Encode(rows []model.Row, columns []model.Column, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{ColumnRecordID, ColumnRecordStatus, ColumnFailureReason}
	for _, c := range columns {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		line := make([]string, 0, len(header))
		line = append(line, row.Source, rowStatus(row), row.FailureReason)
		for _, v := range recordValues(row, columns) {
			line = append(line, v.Text())
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row for '%s': %w", row.Source, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
