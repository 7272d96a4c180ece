package model

import (
	"fmt"
	"strconv"
)

// ValueKind is the scalar type of a decoded field.
type ValueKind string

const (
	KindFloat  ValueKind = "float"
	KindInt    ValueKind = "int"
	KindString ValueKind = "string"
)

// ParseValueKind converts a configuration string into a ValueKind.
func ParseValueKind(s string) (ValueKind, error) {
	switch ValueKind(s) {
	case KindFloat, KindInt, KindString:
		return ValueKind(s), nil
	case "double", "float64":
		return KindFloat, nil
	case "int32", "int64", "integer":
		return KindInt, nil
	}
	return "", fmt.Errorf("unsupported field kind '%s'", s)
}

// Value is one scalar field value. Null values carry only their kind.
type Value struct {
	Kind   ValueKind
	Null   bool
	Float  float64
	Int    int64
	String string
}

func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func StringValue(s string) Value { return Value{Kind: KindString, String: s} }
func NullValue(k ValueKind) Value {
	return Value{Kind: k, Null: true}
}

// Interface returns the Go value (float64, int64, string) or nil for nulls.
func (v Value) Interface() interface{} {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case KindFloat:
		return v.Float
	case KindInt:
		return v.Int
	default:
		return v.String
	}
}

// Text renders the value for text formats; nulls render as "".
func (v Value) Text() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.String
	}
}

// Field is a named value within a Row.
type Field struct {
	Name  string
	Value Value
}

// Row is the flattened scalar representation of one record. Rows are immutable once built.
type Row struct {
	// Source is the identifier of the record the row was decoded from.
	Source string
	// Position is the enumeration position of that record.
	Position int64
	Fields   []Field
	// Empty marks the failure marker row produced for a record that could not be decoded.
	Empty bool
	// FailureReason explains an Empty row.
	FailureReason string
}

// NewRow builds a decoded row. fields is copied.
func NewRow(ref RecordRef, fields []Field) Row {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Row{Source: ref.ID, Position: ref.Position, Fields: cp}
}

// NewEmptyRow builds the failure marker row: every named field is null.
func NewEmptyRow(ref RecordRef, columns []Column, reason string) Row {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		fields[i] = Field{Name: c.Name, Value: NullValue(c.Kind)}
	}
	return Row{Source: ref.ID, Position: ref.Position, Fields: fields, Empty: true, FailureReason: reason}
}

// Get returns the value of the named field.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Column describes one output column produced by the decoder.
type Column struct {
	Name string
	Kind ValueKind
}
