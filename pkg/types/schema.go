package types

import (
	"errors"
	"fmt"
)

// Field value types. Scalar types carry plain values; ref and refset carry
// identities of records of the Target entity type.
const (
	FieldText      = "text"
	FieldInteger   = "integer"
	FieldBoolean   = "boolean"
	FieldTimestamp = "timestamp"
	FieldRef       = "ref"    // to-one reference
	FieldRefSet    = "refset" // many-to-many reference set
)

// validFieldTypes is the set of recognized field type values.
var validFieldTypes = map[string]bool{
	FieldText:      true,
	FieldInteger:   true,
	FieldBoolean:   true,
	FieldTimestamp: true,
	FieldRef:       true,
	FieldRefSet:    true,
}

// Schema validation errors.
var (
	ErrEmptySchema      = errors.New("schema must declare at least one entity type")
	ErrDuplicateType    = errors.New("duplicate entity type name")
	ErrUnknownFieldType = errors.New("unknown field type")
	ErrUnknownTarget    = errors.New("relation target is not a declared entity type")
	ErrMissingTarget    = errors.New("relation field must declare a target")
	ErrUnknownOrderBy   = errors.New("order_by names an undeclared field")
)

// Field describes one declared field of an entity type.
type Field struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`     // entity type name for ref/refset
	Unique   bool   `json:"unique,omitempty" yaml:"unique,omitempty"`     // on ref: one-to-one
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"` // enforced by forms
	MaxLen   int    `json:"max_len,omitempty" yaml:"max_len,omitempty"`   // text fields; 0 means unbounded
}

// IsRelation reports whether the field references another entity type.
func (f Field) IsRelation() bool {
	return f.Type == FieldRef || f.Type == FieldRefSet
}

// EntityType is a declared schema descriptor for one entity type. Relation
// fields connect it to other entity types; OrderBy gives the explicit
// ordering rule, with record ID ascending as the stable fallback.
type EntityType struct {
	Name    string   `json:"name" yaml:"name"`
	Fields  []Field  `json:"fields" yaml:"fields"`
	OrderBy []string `json:"order_by,omitempty" yaml:"order_by,omitempty"`
}

// Field returns the declared field with the given name.
func (et *EntityType) Field(name string) (Field, bool) {
	for _, f := range et.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RelationFields returns the declared ref and refset fields in declaration
// order.
func (et *EntityType) RelationFields() []Field {
	var rels []Field
	for _, f := range et.Fields {
		if f.IsRelation() {
			rels = append(rels, f)
		}
	}
	return rels
}

// NewRecord builds an unsaved record of this type with every declared field
// initialized to its type default.
func (et *EntityType) NewRecord() *Record {
	rec := &Record{Type: et.Name, Fields: make(map[string]any, len(et.Fields))}
	for _, f := range et.Fields {
		rec.Fields[f.Name] = defaultFieldValue(f.Type)
	}
	return rec
}

// defaultFieldValue returns the zero value stored for an unset field.
func defaultFieldValue(fieldType string) any {
	switch fieldType {
	case FieldText:
		return ""
	case FieldInteger:
		return int64(0)
	case FieldBoolean:
		return false
	case FieldTimestamp:
		return nil
	case FieldRef:
		return ""
	case FieldRefSet:
		return []string{}
	default:
		return nil
	}
}

// Schema is the full set of declared entity types. It is immutable after
// construction and safe for concurrent reads.
type Schema struct {
	types  []*EntityType
	byName map[string]*EntityType
}

// NewSchema validates the declared entity types and returns a Schema.
// Every relation target must name a declared type, field types must be
// recognized, and OrderBy entries must name declared fields.
func NewSchema(entityTypes ...*EntityType) (*Schema, error) {
	if len(entityTypes) == 0 {
		return nil, ErrEmptySchema
	}
	s := &Schema{byName: make(map[string]*EntityType, len(entityTypes))}
	for _, et := range entityTypes {
		if _, dup := s.byName[et.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateType, et.Name)
		}
		s.byName[et.Name] = et
		s.types = append(s.types, et)
	}
	for _, et := range s.types {
		for _, f := range et.Fields {
			if !validFieldTypes[f.Type] {
				return nil, fmt.Errorf("%w: %s.%s is %q", ErrUnknownFieldType, et.Name, f.Name, f.Type)
			}
			if f.IsRelation() {
				if f.Target == "" {
					return nil, fmt.Errorf("%w: %s.%s", ErrMissingTarget, et.Name, f.Name)
				}
				if _, ok := s.byName[f.Target]; !ok {
					return nil, fmt.Errorf("%w: %s.%s targets %q", ErrUnknownTarget, et.Name, f.Name, f.Target)
				}
			}
		}
		for _, name := range et.OrderBy {
			if _, ok := et.Field(name); !ok {
				return nil, fmt.Errorf("%w: %s orders by %q", ErrUnknownOrderBy, et.Name, name)
			}
		}
	}
	return s, nil
}

// Type returns the declared entity type with the given name.
// Returns ErrUnknownType if the name is not declared.
func (s *Schema) Type(name string) (*EntityType, error) {
	et, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return et, nil
}

// Types returns the declared entity types in declaration order.
func (s *Schema) Types() []*EntityType {
	return s.types
}
