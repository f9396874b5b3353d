// Package ir defines the data model shared by the reflection graph, the
// location binder, the schema generator and the HTTP transport.
// Shapes form a closed variant: consumers switch over them exhaustively.
package ir

// ShapeKind identifies the variant of a field shape.
type ShapeKind int

const (
	KindScalar     ShapeKind = iota // Primitive value
	KindRepeated                    // Ordered collection of one item shape
	KindMapped                      // Primitive-keyed mapping to one value shape
	KindMessageRef                  // Reference to another message by ID
)

// String returns the string representation of the shape kind.
func (k ShapeKind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindRepeated:
		return "Repeated"
	case KindMapped:
		return "Mapped"
	case KindMessageRef:
		return "MessageRef"
	default:
		return "Unknown"
	}
}

// Shape is the base interface for all field shapes.
type Shape interface {
	// Kind returns the shape kind for type switching.
	Kind() ShapeKind

	// Ensure only types in this package can implement Shape.
	sealed()
}

// Scalar is a primitive value.
type Scalar struct {
	ScalarKind ScalarKind
}

// Kind returns KindScalar.
func (*Scalar) Kind() ShapeKind { return KindScalar }
func (*Scalar) sealed()         {}

// Repeated is an ordered collection of Item.
type Repeated struct {
	Item Shape
}

// Kind returns KindRepeated.
func (*Repeated) Kind() ShapeKind { return KindRepeated }
func (*Repeated) sealed()         {}

// Mapped is a mapping from a primitive key to Value.
// Keys are never walked or described; only the value shape matters.
type Mapped struct {
	Value Shape
}

// Kind returns KindMapped.
func (*Mapped) Kind() ShapeKind { return KindMapped }
func (*Mapped) sealed()         {}

// MessageRef points at a message by identity.
type MessageRef struct {
	ID MessageID
}

// Kind returns KindMessageRef.
func (*MessageRef) Kind() ShapeKind { return KindMessageRef }
func (*MessageRef) sealed()         {}

// Convenience constructors.

// ScalarOf returns a Scalar shape of the given kind.
func ScalarOf(k ScalarKind) *Scalar { return &Scalar{ScalarKind: k} }

// RepeatedOf returns a Repeated shape wrapping item.
func RepeatedOf(item Shape) *Repeated { return &Repeated{Item: item} }

// MappedOf returns a Mapped shape with the given value shape.
func MappedOf(value Shape) *Mapped { return &Mapped{Value: value} }

// Ref returns a MessageRef shape for id.
func Ref(id MessageID) *MessageRef { return &MessageRef{ID: id} }

// Refs returns the message IDs directly referenced by s, unwrapping
// repeated items and mapped values.
func Refs(s Shape) []MessageID {
	switch v := s.(type) {
	case *MessageRef:
		return []MessageID{v.ID}
	case *Repeated:
		return Refs(v.Item)
	case *Mapped:
		return Refs(v.Value)
	case *Scalar:
		return nil
	default:
		return nil
	}
}
