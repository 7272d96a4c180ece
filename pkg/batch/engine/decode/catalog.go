package decode

import (
	"fmt"

	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

// FieldSpec names one scalar field and the table it is read from.
type FieldSpec struct {
	Group string
	Name  string
	Kind  model.ValueKind
}

// FieldCatalog is the fixed, ordered set of fields every row carries.
type FieldCatalog []FieldSpec

// DefaultCatalog returns the Million Song Dataset subset.
func DefaultCatalog() FieldCatalog {
	return FieldCatalog{
		{Group: "metadata/songs", Name: "artist_familiarity", Kind: model.KindFloat},
		{Group: "metadata/songs", Name: "artist_hotttnesss", Kind: model.KindFloat},
		{Group: "metadata/songs", Name: "song_hotttnesss", Kind: model.KindFloat},
		{Group: "analysis/songs", Name: "duration", Kind: model.KindFloat},
		{Group: "analysis/songs", Name: "tempo", Kind: model.KindFloat},
		{Group: "analysis/songs", Name: "loudness", Kind: model.KindFloat},
		{Group: "analysis/songs", Name: "key", Kind: model.KindInt},
		{Group: "analysis/songs", Name: "mode", Kind: model.KindInt},
		{Group: "analysis/songs", Name: "time_signature", Kind: model.KindInt},
		{Group: "musicbrainz/songs", Name: "year", Kind: model.KindInt},
	}
}

// CatalogFromConfig builds the catalog from decode.fields, or returns DefaultCatalog when none are configured.
// Field names become column names and must be unique.
func CatalogFromConfig(fields []config.FieldConfig) (FieldCatalog, error) {
	if len(fields) == 0 {
		return DefaultCatalog(), nil
	}
	catalog := make(FieldCatalog, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Group == "" || f.Name == "" {
			return nil, exception.NewConfigurationError("decode.fields[%d]: group and name are required", i)
		}
		if seen[f.Name] {
			return nil, exception.NewConfigurationError("decode.fields[%d]: duplicate field name '%s'", i, f.Name)
		}
		seen[f.Name] = true
		kind, err := model.ParseValueKind(f.Kind)
		if err != nil {
			return nil, exception.NewConfigurationError("decode.fields[%d]: %v", i, err)
		}
		catalog = append(catalog, FieldSpec{Group: f.Group, Name: f.Name, Kind: kind})
	}
	return catalog, nil
}

// Columns returns the catalog as output columns, in order.
func (c FieldCatalog) Columns() []model.Column {
	cols := make([]model.Column, len(c))
	for i, f := range c {
		cols[i] = model.Column{Name: f.Name, Kind: f.Kind}
	}
	return cols
}

func (f FieldSpec) String() string {
	return fmt.Sprintf("%s/%s", f.Group, f.Name)
}
