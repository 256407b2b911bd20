package chain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// FormState is the render-ready view of a link's selection: raw field
// values keyed by field name, validation errors from the last failed
// submit, and whether the state is bound to a record at all.
type FormState struct {
	Values map[string]string
	Errors map[string]string
	Bound  bool
}

// Form is the optional per-link form capability. A plain chain simply omits
// it. Bind produces the state for the given record (nil clears the form);
// Validate checks raw submitted data against the entity type and returns
// the parsed values, or field-keyed error messages.
type Form interface {
	Bind(rec *types.Record) FormState
	Validate(raw map[string]string) (map[string]any, map[string]string)
}

// Form returns the link's form capability, or nil.
func (l *Link) Form() Form { return l.form }

// FormState returns the state bound at the last selection change.
func (l *Link) FormState() FormState { return l.formState }

// SaveForm validates raw submitted data and persists it to the current
// selection, or to a new default record when nothing is selected (subject
// to the usual ErrUnlinkedParent check). On validation failure it returns
// (false, errors, nil) without mutating chain state.
func (l *Link) SaveForm(raw map[string]string) (bool, map[string]string, error) {
	if l.form == nil {
		return false, nil, fmt.Errorf("%w: %s", ErrNoForm, l.etype.Name)
	}
	values, fieldErrs := l.form.Validate(raw)
	if len(fieldErrs) == 0 && l.selected == nil {
		// Creating from an empty form: every required field must be present.
		for _, field := range l.etype.Fields {
			if field.Required && !field.IsRelation() {
				if _, submitted := raw[field.Name]; !submitted {
					if fieldErrs == nil {
						fieldErrs = make(map[string]string)
					}
					fieldErrs[field.Name] = "required"
				}
			}
		}
	}
	if len(fieldErrs) > 0 {
		l.formState = FormState{Values: raw, Errors: fieldErrs, Bound: l.selected != nil}
		return false, fieldErrs, nil
	}

	if l.selected == nil {
		if err := l.Select(l.etype.NewRecord()); err != nil {
			return false, nil, err
		}
	}
	for name, value := range values {
		l.selected.Set(name, value)
	}
	if err := l.Save(); err != nil {
		return false, nil, err
	}
	l.formState = l.form.Bind(l.selected)
	return true, nil, nil
}

// SchemaForm is the default Form implementation, driven entirely by the
// declared schema: required and max-length checks on text fields, parse
// checks on integer, boolean, and timestamp fields. Relation fields are
// managed by the chain and are not form-editable.
type SchemaForm struct {
	etype *types.EntityType
}

// NewSchemaForm returns a schema-driven form for the entity type.
func NewSchemaForm(etype *types.EntityType) *SchemaForm {
	return &SchemaForm{etype: etype}
}

// Bind renders the record's scalar fields as strings.
func (f *SchemaForm) Bind(rec *types.Record) FormState {
	state := FormState{Values: make(map[string]string), Bound: rec != nil}
	for _, field := range f.etype.Fields {
		if field.IsRelation() {
			continue
		}
		if rec == nil {
			state.Values[field.Name] = ""
			continue
		}
		state.Values[field.Name] = renderFieldValue(field, rec)
	}
	return state
}

// Validate parses raw values per the declared field types. Unknown keys are
// rejected; missing keys are simply not updated.
func (f *SchemaForm) Validate(raw map[string]string) (map[string]any, map[string]string) {
	values := make(map[string]any, len(raw))
	fieldErrs := make(map[string]string)

	for name, value := range raw {
		field, ok := f.etype.Field(name)
		if !ok || field.IsRelation() {
			fieldErrs[name] = "unknown field"
			continue
		}
		switch field.Type {
		case types.FieldText:
			if field.Required && value == "" {
				fieldErrs[name] = "required"
				continue
			}
			if field.MaxLen > 0 && len(value) > field.MaxLen {
				fieldErrs[name] = fmt.Sprintf("longer than %d characters", field.MaxLen)
				continue
			}
			values[name] = value
		case types.FieldInteger:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				fieldErrs[name] = "not an integer"
				continue
			}
			values[name] = n
		case types.FieldBoolean:
			b, err := strconv.ParseBool(value)
			if err != nil {
				fieldErrs[name] = "not a boolean"
				continue
			}
			values[name] = b
		case types.FieldTimestamp:
			if value == "" {
				values[name] = nil
				continue
			}
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				fieldErrs[name] = "not an RFC 3339 timestamp"
				continue
			}
			values[name] = t
		}
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return values, nil
}

func renderFieldValue(field types.Field, rec *types.Record) string {
	switch field.Type {
	case types.FieldText:
		return rec.Text(field.Name)
	case types.FieldInteger:
		return strconv.FormatInt(rec.Int(field.Name), 10)
	case types.FieldBoolean:
		return strconv.FormatBool(rec.Bool(field.Name))
	case types.FieldTimestamp:
		t := rec.Time(field.Name)
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	default:
		return ""
	}
}
