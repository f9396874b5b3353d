package ir

// ScalarKind identifies the category of a primitive value.
type ScalarKind int

const (
	ScalarBool  ScalarKind = iota
	ScalarInt              // Signed integer of any width
	ScalarUint             // Unsigned integer of any width
	ScalarFloat            // float32 or float64
	ScalarString
	ScalarBytes // []byte (base64-encoded in JSON)
	ScalarTime  // time.Time (RFC 3339 string in JSON)
	ScalarAny   // interface{} / any
)

// String returns the string representation of the scalar kind.
func (k ScalarKind) String() string {
	switch k {
	case ScalarBool:
		return "Bool"
	case ScalarInt:
		return "Int"
	case ScalarUint:
		return "Uint"
	case ScalarFloat:
		return "Float"
	case ScalarString:
		return "String"
	case ScalarBytes:
		return "Bytes"
	case ScalarTime:
		return "Time"
	case ScalarAny:
		return "Any"
	default:
		return "Unknown"
	}
}
