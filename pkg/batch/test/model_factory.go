package test

import (
	"fmt"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// NewTestRef creates a local RecordRef named "record-<pos>.h5".
func NewTestRef(pos int64) model.RecordRef {
	return model.RecordRef{Kind: model.RecordKindLocal, ID: fmt.Sprintf("record-%03d.h5", pos), Position: pos}
}

// NewTestColumns returns a two-column schema: "tempo" (float) and "year" (int).
func NewTestColumns() []model.Column {
	return []model.Column{
		{Name: "tempo", Kind: model.KindFloat},
		{Name: "year", Kind: model.KindInt},
	}
}

// NewTestRow creates a row matching NewTestColumns.
func NewTestRow(pos int64) model.Row {
	return model.NewRow(NewTestRef(pos), []model.Field{
		{Name: "tempo", Value: model.FloatValue(100 + float64(pos))},
		{Name: "year", Value: model.IntValue(1990 + pos)},
	})
}

// NewTestBatch creates a batch holding rows for positions first..last.
func NewTestBatch(first, last int64) *model.Batch {
	b := &model.Batch{Capacity: int(last - first + 1), FirstPosition: first, LastPosition: last}
	for pos := first; pos <= last; pos++ {
		b.Rows = append(b.Rows, NewTestRow(pos))
	}
	b.LastRef = NewTestRef(last).ID
	b.Consumed = last - first + 1
	return b
}
