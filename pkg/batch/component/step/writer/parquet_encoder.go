package writer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// ParquetEncoder writes rows through parquet-go's CSV-schema writer, so the schema is built
// from the column list at runtime. Catalog columns are OPTIONAL; empty rows store nulls.
type ParquetEncoder struct {
	codec    parquet.CompressionCodec
	parallel int64
}

// NewParquetEncoder creates a ParquetEncoder. parallel is the number of page-encoding goroutines.
func NewParquetEncoder(compression string, parallel int64) (*ParquetEncoder, error) {
	codec, err := getCompressionCodec(compression)
	if err != nil {
		return nil, err
	}
	if parallel <= 0 {
		parallel = 1
	}
	return &ParquetEncoder{codec: codec, parallel: parallel}, nil
}

func (e *ParquetEncoder) Extension() string   { return "parquet" }
func (e *ParquetEncoder) ContentType() string { return "application/vnd.apache.parquet" }

// Encode writes a single parquet file to w.
func (e *ParquetEncoder) Encode(rows []model.Row, columns []model.Column, w io.Writer) (err error) {
	pw, err := writer.NewCSVWriterFromWriter(parquetSchema(columns), w, e.parallel)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = e.codec

	// parquet-go panics on some schema and value mismatches.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Parquet writer panicked: %v", r)
			err = fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()

	for _, row := range rows {
		rec := make([]interface{}, 0, len(columns)+3)
		rec = append(rec, row.Source, rowStatus(row))
		if row.Empty {
			rec = append(rec, row.FailureReason)
		} else {
			rec = append(rec, nil)
		}
		for _, v := range recordValues(row, columns) {
			rec = append(rec, v.Interface())
		}
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("write parquet row for '%s': %w", row.Source, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return nil
}

func parquetSchema(columns []model.Column) []string {
	md := []string{
		fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED", ColumnRecordID),
		fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED", ColumnRecordStatus),
		fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", ColumnFailureReason),
	}
	for _, c := range columns {
		switch c.Kind {
		case model.KindFloat:
			md = append(md, fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", c.Name))
		case model.KindInt:
			md = append(md, fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", c.Name))
		default:
			md = append(md, fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.Name))
		}
	}
	return md
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "": // NONE or empty string means uncompressed
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
