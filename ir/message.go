package ir

import "reflect"

// MessageID is the stable identity of a message: the package-qualified Go
// type name. Two messages are the same message only if their IDs are equal.
type MessageID string

// EmptyName is the definitions name of the sentinel empty message.
const EmptyName = "Empty"

// Empty is the sentinel "no content" message.
// Use it as a request or response type for methods that carry no data.
// It never appears in generated definitions.
type Empty struct{}

// EmptyID is the identity of the Empty sentinel.
var EmptyID = IDOf(reflect.TypeFor[Empty]())

// IDOf returns the message identity for a named Go type.
func IDOf(t reflect.Type) MessageID {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return MessageID(t.String())
	}
	return MessageID(t.PkgPath() + "." + t.Name())
}

// Message is a named structural type with an ordered set of fields.
type Message struct {
	// ID is the identity used for deduplication.
	ID MessageID

	// Name is the definitions key, e.g. "Pet".
	Name string

	// Fields in declaration order.
	Fields []Field

	// Type is the Go struct type backing the message.
	Type reflect.Type
}

// IsEmpty reports whether m is the sentinel empty message.
func (m *Message) IsEmpty() bool { return m.ID == EmptyID }

// FieldNames returns the wire names of all fields in declaration order.
func (m *Message) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by wire name.
func (m *Message) Field(name string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Field is a named, shaped member of a message.
type Field struct {
	// Name is the wire name (from the json tag, else the Go field name).
	Name string

	// Index is the Go field index path, suitable for reflect.Value.FieldByIndex.
	Index []int

	// Shape describes the value.
	Shape Shape

	// Options holds per-field metadata such as "description" and "validate".
	Options map[string]string
}

// Description returns the "description" option, or "".
func (f *Field) Description() string { return f.Options["description"] }

// Get returns the field's value within the struct value v.
func (f *Field) Get(v reflect.Value) reflect.Value {
	return reflect.Indirect(v).FieldByIndex(f.Index)
}

// Set assigns x to the field within the struct value v, which must be addressable.
func (f *Field) Set(v reflect.Value, x reflect.Value) {
	reflect.Indirect(v).FieldByIndex(f.Index).Set(x)
}
