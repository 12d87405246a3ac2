package flowgraph

import "fmt"

// LogicalType is an opaque tag drawn from the underlying columnar engine's
// closed type set (spec §3). Coercion rules belong to the engine; the
// kernel only ever compares, propagates, and serializes these tags.
type LogicalType string

// The closed set of logical types the kernel understands.
const (
	TypeString   LogicalType = "string"
	TypeInt8     LogicalType = "int8"
	TypeInt16    LogicalType = "int16"
	TypeInt32    LogicalType = "int32"
	TypeInt64    LogicalType = "int64"
	TypeUInt8    LogicalType = "uint8"
	TypeUInt16   LogicalType = "uint16"
	TypeUInt32   LogicalType = "uint32"
	TypeUInt64   LogicalType = "uint64"
	TypeFloat32  LogicalType = "float32"
	TypeFloat64  LogicalType = "float64"
	TypeBoolean  LogicalType = "boolean"
	TypeDate     LogicalType = "date"
	TypeDatetime LogicalType = "datetime"
	TypeTime     LogicalType = "time"
	TypeDecimal  LogicalType = "decimal"
	TypeList     LogicalType = "list"
	TypeStruct   LogicalType = "struct"
	TypeUnknown  LogicalType = "unknown"
)

// Column is one (name, logical type) pair in a Schema.
type Column struct {
	Name string      `yaml:"name" json:"name"`
	Type LogicalType `yaml:"type" json:"type"`
}

// Schema is an ordered sequence of columns (spec GLOSSARY).
type Schema []Column

// Clone returns an independent copy of the schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Names returns the ordered column names.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of name in the schema, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the schema declares a column with the given name.
func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

// Get returns the column with the given name.
func (s Schema) Get(name string) (Column, bool) {
	i := s.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return s[i], true
}

// Equal reports whether two schemas have identical columns in the same
// order. Used by the schema round-trip testable property (spec §8).
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	out := "["
	for i, c := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s:%s", c.Name, c.Type)
	}
	return out + "]"
}

// SchemaResult is the outcome of a schema propagation step for a single node
// (spec §4.5). Exactly one of Known alone (fully known), a partial schema
// (Known+Dynamic), or Reason (schema-unknown) is meaningful, selected by
// Status.
type SchemaResult struct {
	Status SchemaStatus
	// Known holds the statically determined columns. For SchemaKnown this is
	// the complete schema; for SchemaPartial it is the prefix known at
	// design time (e.g. a pivot's index columns).
	Known Schema
	// Dynamic describes columns whose names cannot be known without data,
	// used only when Status == SchemaPartial.
	Dynamic *DynamicColumns
	// Reason explains why the schema is unknown (Status == SchemaUnknownStatus).
	Reason string
}

// SchemaStatus classifies a SchemaResult.
type SchemaStatus int

const (
	// SchemaKnown means Known is the complete, authoritative schema.
	SchemaKnown SchemaStatus = iota
	// SchemaPartial means Known is a prefix and Dynamic describes the rest
	// (pivot's value-of(pivot_col) columns — spec §4.5).
	SchemaPartial
	// SchemaUnknownStatus means nothing can be predicted without data
	// (raw code with no declared schema, or an upstream that is itself
	// schema-unknown).
	SchemaUnknownStatus
)

// DynamicColumns describes a schema's data-dependent tail: one column per
// distinct value of PivotColumn, each holding the result of Aggregation
// applied to ValueColumn.
type DynamicColumns struct {
	PivotColumn string
	ValueColumn string
	Aggregation AggFunc
}

// IsKnown reports whether the full schema is statically determined.
func (r SchemaResult) IsKnown() bool { return r.Status == SchemaKnown }
