// Package decode turns staged record files into rows. Every failure, including panics from
// the format library, is contained at this boundary and reported as a DecodeFailure.
package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// DecodeFailure describes a record that could not be decoded.
type DecodeFailure struct {
	Ref    model.RecordRef
	Reason string
	// Err is a DecodeFailure BatchError wrapping the cause.
	Err error
}

func (f *DecodeFailure) Error() string {
	return f.Err.Error()
}

func (f *DecodeFailure) Unwrap() error {
	return f.Err
}

// Result holds either a decoded Row or a Failure. Interrupted is set instead when the
// context was done before the record was read; such a record was neither decoded nor failed.
type Result struct {
	Row         model.Row
	Failure     *DecodeFailure
	Interrupted error
}

// OK reports whether the record was decoded.
func (r Result) OK() bool {
	return r.Failure == nil && r.Interrupted == nil
}

// Decoder reads the catalog fields of one record index from each staged file.
type Decoder struct {
	reader      format.Reader
	catalog     FieldCatalog
	recordIndex int
	onFailure   string
}

// NewDecoder creates a Decoder. onFailure is config.OnFailureEmpty or config.OnFailureSkip.
func NewDecoder(reader format.Reader, catalog FieldCatalog, recordIndex int, onFailure string) (*Decoder, error) {
	if reader == nil {
		return nil, exception.NewConfigurationError("decoder requires a format reader")
	}
	if len(catalog) == 0 {
		return nil, exception.NewConfigurationError("decoder requires at least one field")
	}
	switch onFailure {
	case "":
		onFailure = config.OnFailureEmpty
	case config.OnFailureEmpty, config.OnFailureSkip:
	default:
		return nil, exception.NewConfigurationError("unknown decode.on_failure '%s'", onFailure)
	}
	return &Decoder{reader: reader, catalog: catalog, recordIndex: recordIndex, onFailure: onFailure}, nil
}

// Columns returns the columns of every row this decoder produces.
func (d *Decoder) Columns() []model.Column {
	return d.catalog.Columns()
}

// SkipsFailures reports whether failed records produce no row.
func (d *Decoder) SkipsFailures() bool {
	return d.onFailure == config.OnFailureSkip
}

// Decode reads every catalog field of staged. It never panics.
func (d *Decoder) Decode(ctx context.Context, staged *model.StagedRecord) (res Result) {
	ref := staged.Ref
	defer func() {
		if r := recover(); r != nil {
			res = failure(ref, fmt.Sprintf("panic in format reader: %v", r), nil)
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{Interrupted: err}
	}

	h, err := d.reader.Open(staged.Path)
	if err != nil {
		return failure(ref, "cannot open record", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Warnf("Failed to close record '%s': %v", ref, err)
		}
	}()

	fields := make([]model.Field, 0, len(d.catalog))
	for _, field := range d.catalog {
		v, err := h.ReadField(field.Group, field.Name, d.recordIndex)
		if err != nil {
			reason := "cannot read field " + field.String()
			if errors.Is(err, format.ErrFieldNotFound) {
				reason = "missing field " + field.String()
			}
			return failure(ref, reason, err)
		}
		v, err = coerce(v, field.Kind)
		if err != nil {
			return failure(ref, "type mismatch in field "+field.String(), err)
		}
		fields = append(fields, model.Field{Name: field.Name, Value: v})
	}
	return Result{Row: model.NewRow(ref, fields)}
}

// RowFor applies the failure policy: a decoded row is returned as is; a failure becomes
// the empty marker row, or no row when failures are skipped. An interrupted result has no row.
func (d *Decoder) RowFor(res Result) (model.Row, bool) {
	if res.OK() {
		return res.Row, true
	}
	if res.Interrupted != nil || d.SkipsFailures() {
		return model.Row{}, false
	}
	return model.NewEmptyRow(res.Failure.Ref, d.Columns(), res.Failure.Reason), true
}

func failure(ref model.RecordRef, reason string, cause error) Result {
	return Result{Failure: &DecodeFailure{
		Ref:    ref,
		Reason: reason,
		Err:    exception.NewDecodeFailure(ref.String(), reason, cause),
	}}
}

// coerce converts v to kind. Integers widen to floats; every other mismatch is an error.
func coerce(v model.Value, kind model.ValueKind) (model.Value, error) {
	if v.Kind == kind {
		return v, nil
	}
	if v.Null {
		return model.NullValue(kind), nil
	}
	if v.Kind == model.KindInt && kind == model.KindFloat {
		return model.FloatValue(float64(v.Int)), nil
	}
	return model.Value{}, fmt.Errorf("got %s, want %s", v.Kind, kind)
}
