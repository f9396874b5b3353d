package ir

import (
	"reflect"

	"github.com/broady/routerpc/bind"
)

// Service represents a named group of methods.
type Service struct {
	// Name is the service identifier (e.g., "PetService").
	Name string

	// Type is the Go type of the service implementation.
	// It is the key handed to instance resolvers.
	Type reflect.Type

	// Methods in registration order.
	Methods []*Method
}

// Method represents a single RPC operation.
type Method struct {
	// Name is the method identifier within the service (e.g., "get_pet").
	Name string

	// Service is the owning service's name.
	Service string

	// Verb is the upper-case HTTP verb.
	Verb string

	// Route is the path template as declared, e.g. "./pet/{id}".
	Route string

	// Request and Response identify the message types.
	Request  MessageID
	Response MessageID

	// Options holds method metadata; "description" is used in schemas.
	Options map[string]string

	// Status is the declared success status.
	Status int

	// Locations maps every request field to PATH, QUERY or BODY.
	// Computed once at registration.
	Locations bind.Assignment
}

// FullName returns "Service.Method".
func (m *Method) FullName() string { return m.Service + "." + m.Name }

// Path returns the normalized route used for dispatch and documentation.
func (m *Method) Path() string { return bind.Normalize(m.Route) }

// Description returns the "description" option, or "".
func (m *Method) Description() string { return m.Options["description"] }
