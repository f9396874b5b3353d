package reflection

import (
	"encoding"
	"fmt"
	"maps"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/broady/routerpc/bind"
	"github.com/broady/routerpc/ir"
)

var (
	timeType          = reflect.TypeFor[time.Time]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// fieldOptionTags are struct tags copied into ir.Field.Options.
var fieldOptionTags = []string{"description", "validate"}

// walker maintains state during one registration batch.
// It works on copies of the graph's indexes so a failed batch leaves
// the graph untouched.
type walker struct {
	byID   map[ir.MessageID]*ir.Message
	byName map[string]ir.MessageID
	queue  []*ir.Message         // discovered, fields not yet described
	added  []*ir.Message         // discovered in this batch, in discovery order
	active map[reflect.Type]bool // unnamed-shape types being described
}

func newWalker(byID map[ir.MessageID]*ir.Message, byName map[string]ir.MessageID) *walker {
	w := &walker{
		byID:   maps.Clone(byID),
		byName: maps.Clone(byName),
		active: make(map[reflect.Type]bool),
	}
	if w.byID == nil {
		w.byID = make(map[ir.MessageID]*ir.Message)
	}
	if w.byName == nil {
		w.byName = make(map[string]ir.MessageID)
	}
	return w
}

// method describes one method declaration and walks its messages.
func (w *walker) method(service string, md MethodDecl) (*ir.Method, error) {
	if md.Name == "" {
		return nil, fmt.Errorf("method name is empty")
	}
	if md.Request == nil || md.Response == nil {
		return nil, fmt.Errorf("%w: request and response types are required", ErrMalformedMessage)
	}
	reqID, err := w.enqueue(md.Request)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	resID, err := w.enqueue(md.Response)
	if err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	if err := w.drain(); err != nil {
		return nil, err
	}

	locs, err := Locations(md.Verb, md.Route, w.byID[reqID])
	if err != nil {
		return nil, err
	}

	status := md.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &ir.Method{
		Name:      md.Name,
		Service:   service,
		Verb:      md.Verb,
		Route:     md.Route,
		Request:   reqID,
		Response:  resID,
		Options:   maps.Clone(md.Options),
		Status:    status,
		Locations: locs,
	}, nil
}

// enqueue marks a struct type as discovered and schedules its fields.
// A type already discovered is never expanded again.
func (w *walker) enqueue(t reflect.Type) (ir.MessageID, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: %s is not a struct", ErrMalformedMessage, t)
	}
	if t.Name() == "" {
		return "", fmt.Errorf("%w: anonymous struct %s", ErrMalformedMessage, t)
	}

	id := ir.IDOf(t)
	if known, ok := w.byID[id]; ok {
		// Function-local types share the identity string of package-level
		// types with the same name.
		if known.Type != nil && known.Type != t {
			return "", fmt.Errorf("%w: two distinct types are both %s", ErrNameCollision, id)
		}
		return id, nil
	}

	name := messageName(t)
	if other, ok := w.byName[name]; ok && other != id {
		return "", fmt.Errorf("%w: %s and %s are both named %q", ErrNameCollision, other, id, name)
	}

	msg := &ir.Message{ID: id, Name: name, Type: t}
	w.byID[id] = msg
	w.byName[name] = id
	w.queue = append(w.queue, msg)
	w.added = append(w.added, msg)
	return id, nil
}

// drain describes the fields of every queued message, discovering more
// messages as it goes, until the queue is empty.
func (w *walker) drain() error {
	for len(w.queue) > 0 {
		msg := w.queue[0]
		w.queue = w.queue[1:]

		seen := make(map[string]bool)
		if err := w.fields(msg, msg.Type, nil, seen); err != nil {
			return fmt.Errorf("message %s: %w", msg.Name, err)
		}
	}
	return nil
}

// fields appends the fields of struct type t to msg, flattening embedded
// structs the way encoding/json does.
func (w *walker) fields(msg *ir.Message, t reflect.Type, index []int, seen map[string]bool) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		idx := append(slices.Clone(index), i)

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				return fmt.Errorf("%w: embedded pointer %s", ErrMalformedMessage, ft)
			}
			if ft.Kind() == reflect.Struct {
				if err := w.fields(msg, ft, idx, seen); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate field %q", ErrMalformedMessage, name)
		}
		seen[name] = true

		shape, err := w.shape(sf.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}

		var opts map[string]string
		for _, key := range fieldOptionTags {
			if v, ok := sf.Tag.Lookup(key); ok {
				if opts == nil {
					opts = make(map[string]string)
				}
				opts[key] = v
			}
		}

		msg.Fields = append(msg.Fields, ir.Field{
			Name:    name,
			Index:   idx,
			Shape:   shape,
			Options: opts,
		})
	}
	return nil
}

// Locations assigns the fields of req to PATH, QUERY and BODY and checks
// that every PATH and QUERY field can be written into a URL. Servers and
// clients both bind requests through it.
func Locations(verb, route string, req *ir.Message) (bind.Assignment, error) {
	locs, err := bind.Locate(verb, route, req.FieldNames())
	if err != nil {
		return bind.Assignment{}, err
	}
	for _, name := range locs.Path {
		f, _ := req.Field(name)
		if s, ok := f.Shape.(*ir.Scalar); !ok || s.ScalarKind == ir.ScalarAny || s.ScalarKind == ir.ScalarBytes {
			return bind.Assignment{}, fmt.Errorf("%w: {%s} is %s", ErrPathShape, name, f.Shape.Kind())
		}
	}
	for _, name := range locs.Query {
		f, _ := req.Field(name)
		if !queryShape(f.Shape) {
			return bind.Assignment{}, fmt.Errorf("%w: %s is %s", ErrQueryShape, name, f.Shape.Kind())
		}
	}
	return locs, nil
}

// queryShape reports whether a field can travel as query parameters:
// a scalar or a repeated scalar, excluding Any and Bytes.
func queryShape(s ir.Shape) bool {
	if r, ok := s.(*ir.Repeated); ok {
		s = r.Item
	}
	sc, ok := s.(*ir.Scalar)
	return ok && sc.ScalarKind != ir.ScalarAny && sc.ScalarKind != ir.ScalarBytes
}

// shape maps a Go type onto the closed shape variant.
// Struct types stop at enqueue; any other type that reaches itself again,
// such as type Tree map[string]Tree, is malformed.
func (w *walker) shape(t reflect.Type) (ir.Shape, error) {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		if w.active[t] {
			return nil, fmt.Errorf("%w: recursive unnamed shape %s", ErrMalformedMessage, t)
		}
		w.active[t] = true
		defer delete(w.active, t)
	}

	switch {
	case t == timeType:
		return ir.ScalarOf(ir.ScalarTime), nil
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return ir.ScalarOf(ir.ScalarBytes), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return ir.ScalarOf(ir.ScalarBool), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ir.ScalarOf(ir.ScalarInt), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return ir.ScalarOf(ir.ScalarUint), nil
	case reflect.Float32, reflect.Float64:
		return ir.ScalarOf(ir.ScalarFloat), nil
	case reflect.String:
		return ir.ScalarOf(ir.ScalarString), nil
	case reflect.Interface:
		return ir.ScalarOf(ir.ScalarAny), nil
	case reflect.Pointer:
		return w.shape(t.Elem())
	case reflect.Slice, reflect.Array:
		item, err := w.shape(t.Elem())
		if err != nil {
			return nil, err
		}
		return ir.RepeatedOf(item), nil
	case reflect.Map:
		if !validMapKey(t.Key()) {
			return nil, fmt.Errorf("%w: map key %s is not a primitive", ErrMalformedMessage, t.Key())
		}
		value, err := w.shape(t.Elem())
		if err != nil {
			return nil, err
		}
		return ir.MappedOf(value), nil
	case reflect.Struct:
		id, err := w.enqueue(t)
		if err != nil {
			return nil, err
		}
		return ir.Ref(id), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrMalformedMessage, t.Kind())
	}
}

// validMapKey reports whether encoding/json can use t as an object key.
func validMapKey(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
}

// messageName returns a definitions-safe name for t. Generic instantiations
// such as Page[pkg.User] become Page_User.
func messageName(t reflect.Type) string {
	name := t.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name
	}
	base := name[:open]
	args := strings.Split(strings.TrimSuffix(name[open+1:], "]"), ",")
	parts := []string{base}
	for _, a := range args {
		a = strings.TrimSpace(a)
		a = strings.TrimLeft(a, "*[]")
		if dot := strings.LastIndexByte(a, '.'); dot >= 0 {
			a = a[dot+1:]
		}
		if slash := strings.LastIndexByte(a, '/'); slash >= 0 {
			a = a[slash+1:]
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, "_")
}
