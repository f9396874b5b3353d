// Package reflection builds the reflect graph: the closed, deduplicated set
// of services, methods and messages reachable from registered service
// declarations.
//
// Messages are Go struct types. Walking is breadth-first with a discovered
// set keyed by type identity, so self-referential and mutually referential
// messages terminate and appear exactly once. Recursion must pass through a
// named struct; a type such as map[string]Tree that contains itself
// directly is malformed.
//
// Field names follow encoding/json with two stricter rules: embedded
// structs are flattened only when embedded by value, and a wire name may
// appear once across all embedding depths. Both cases are reported as
// ErrMalformedMessage instead of being resolved silently.
package reflection

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/broady/routerpc/bind"
	"github.com/broady/routerpc/ir"
)

var (
	// ErrMalformedMessage is returned when a request, response or field type
	// cannot be described as a message.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrNameCollision is returned when two distinct Go types would share a
	// definitions name.
	ErrNameCollision = errors.New("message name collision")

	// ErrDuplicateRoute is returned when two methods claim the same verb and path.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrDuplicateService is returned when a service name is registered twice.
	ErrDuplicateService = errors.New("duplicate service")

	// ErrPathShape is returned when a path placeholder names a non-scalar field.
	ErrPathShape = errors.New("path field must be a scalar")

	// ErrQueryShape is returned when a query field is neither a scalar nor a
	// repeated scalar.
	ErrQueryShape = errors.New("query field must be a scalar or repeated scalar")
)

// ConfigError reports a declaration that cannot be served.
// Configuration errors are detected at registration and are fatal.
type ConfigError struct {
	Service string
	Method  string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("routerpc: service %s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("routerpc: %s.%s: %v", e.Service, e.Method, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// MethodDecl declares one method of a service.
type MethodDecl struct {
	Name     string
	Verb     string
	Route    string
	Request  reflect.Type
	Response reflect.Type
	Options  map[string]string

	// Status is the success status; 0 means 200.
	Status int
}

// ServiceDecl declares a service and its methods.
type ServiceDecl struct {
	Name    string
	Type    reflect.Type
	Methods []MethodDecl
}

// Graph is the reflect graph. It is append-only: each Register call adds
// one batch atomically. A Graph is safe for concurrent reads once
// registration has finished.
type Graph struct {
	services []*ir.Service
	methods  []*ir.Method
	messages []*ir.Message

	byID   map[ir.MessageID]*ir.Message
	byName map[string]ir.MessageID
	routes map[string]*ir.Method
	names  map[string]bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byID:   make(map[ir.MessageID]*ir.Message),
		byName: make(map[string]ir.MessageID),
		routes: make(map[string]*ir.Method),
		names:  make(map[string]bool),
	}
}

// Register adds a service's methods and every message reachable from them.
// On error the graph is left unchanged.
func (g *Graph) Register(decl ServiceDecl) error {
	if decl.Name == "" {
		return &ConfigError{Service: "<unnamed>", Err: errors.New("service name is empty")}
	}
	if g.names[decl.Name] {
		return &ConfigError{Service: decl.Name, Err: ErrDuplicateService}
	}

	w := newWalker(g.byID, g.byName)
	routes := maps.Clone(g.routes)
	svc := &ir.Service{Name: decl.Name, Type: decl.Type}

	for _, md := range decl.Methods {
		m, err := w.method(decl.Name, md)
		if err != nil {
			return &ConfigError{Service: decl.Name, Method: md.Name, Err: err}
		}
		key := bind.Signature(m.Verb, m.Route)
		if prev, ok := routes[key]; ok {
			return &ConfigError{Service: decl.Name, Method: md.Name,
				Err: fmt.Errorf("%w: %s already served by %s", ErrDuplicateRoute, key, prev.FullName())}
		}
		routes[key] = m
		svc.Methods = append(svc.Methods, m)
	}

	// Commit.
	g.byID = w.byID
	g.byName = w.byName
	g.routes = routes
	g.messages = append(g.messages, w.added...)
	g.methods = append(g.methods, svc.Methods...)
	g.services = append(g.services, svc)
	g.names[decl.Name] = true
	return nil
}

// Services returns the registered services in registration order.
func (g *Graph) Services() []*ir.Service { return slices.Clone(g.services) }

// Methods returns every registered method in registration order.
func (g *Graph) Methods() []*ir.Method { return slices.Clone(g.methods) }

// Messages returns every discovered message in discovery order.
func (g *Graph) Messages() []*ir.Message { return slices.Clone(g.messages) }

// Message looks up a message by identity.
func (g *Graph) Message(id ir.MessageID) (*ir.Message, bool) {
	m, ok := g.byID[id]
	return m, ok
}

// MessageByName looks up a message by definitions name.
func (g *Graph) MessageByName(name string) (*ir.Message, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.Message(id)
}

// Request returns the request message of m.
func (g *Graph) Request(m *ir.Method) *ir.Message { return g.byID[m.Request] }

// Response returns the response message of m.
func (g *Graph) Response(m *ir.Method) *ir.Message { return g.byID[m.Response] }

// Validate checks the graph for structural issues: every reference must
// resolve and every request field must have exactly one location.
// Returns all problems found (not just the first).
func (g *Graph) Validate() []error {
	var errs []error
	for _, msg := range g.messages {
		for _, f := range msg.Fields {
			for _, id := range ir.Refs(f.Shape) {
				if _, ok := g.byID[id]; !ok {
					errs = append(errs, fmt.Errorf("message %s field %s references unknown message %s", msg.Name, f.Name, id))
				}
			}
		}
	}
	for _, m := range g.methods {
		req, ok := g.byID[m.Request]
		if !ok {
			errs = append(errs, fmt.Errorf("method %s references unknown request %s", m.FullName(), m.Request))
			continue
		}
		if _, ok := g.byID[m.Response]; !ok {
			errs = append(errs, fmt.Errorf("method %s references unknown response %s", m.FullName(), m.Response))
		}
		if m.Locations.Len() != len(req.Fields) {
			errs = append(errs, fmt.Errorf("method %s assigns %d of %d request fields", m.FullName(), m.Locations.Len(), len(req.Fields)))
		}
	}
	return errs
}

// MessageOf describes a single Go struct type without a graph.
// Referenced messages are walked but discarded.
func MessageOf(t reflect.Type) (*ir.Message, error) {
	w := newWalker(nil, nil)
	id, err := w.enqueue(t)
	if err != nil {
		return nil, err
	}
	if err := w.drain(); err != nil {
		return nil, err
	}
	return w.byID[id], nil
}
