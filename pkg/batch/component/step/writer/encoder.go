package writer

import (
	"fmt"
	"io"

	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

const (
	// ColumnRecordID holds the identifier of the source record.
	ColumnRecordID = "record_id"
	// ColumnRecordStatus is "ok" for decoded rows and "failed" for empty marker rows.
	ColumnRecordStatus = "record_status"
	// ColumnFailureReason explains a failed row. Null for decoded rows.
	ColumnFailureReason = "failure_reason"

	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Encoder serializes rows into one artifact.
type Encoder interface {
	// Encode writes rows with the given catalog columns to w. The fixed record columns come first.
	Encode(rows []model.Row, columns []model.Column, w io.Writer) error
	// Extension returns the file extension without the dot.
	Extension() string
	ContentType() string
}

// NewEncoder returns the encoder for cfg.Format.
func NewEncoder(cfg config.OutputConfig) (Encoder, error) {
	switch cfg.Format {
	case config.FormatParquet, "":
		return NewParquetEncoder(cfg.Compression, cfg.ParallelWriters)
	case config.FormatCSV:
		return &CSVEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format '%s'", cfg.Format)
	}
}

// recordValues returns the catalog values of row in column order. Fields are matched by
// position first and by name when the row's layout differs from the columns.
func recordValues(row model.Row, columns []model.Column) []model.Value {
	values := make([]model.Value, len(columns))
	for i, c := range columns {
		if i < len(row.Fields) && row.Fields[i].Name == c.Name {
			values[i] = row.Fields[i].Value
			continue
		}
		if v, ok := row.Get(c.Name); ok {
			values[i] = v
		} else {
			values[i] = model.NullValue(c.Kind)
		}
	}
	return values
}

func rowStatus(row model.Row) string {
	if row.Empty {
		return StatusFailed
	}
	return StatusOK
}
