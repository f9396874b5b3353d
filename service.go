package routerpc

import (
	"context"
	"maps"
	"reflect"

	"github.com/broady/routerpc/reflection"
)

// endpoint is the type-erased form of an Endpoint.
type endpoint struct {
	verb         string
	route        string
	options      map[string]string
	status       int
	interceptors []UnaryInterceptor

	reqType reflect.Type
	resType reflect.Type

	// call invokes the method on a service instance. req is a *Req.
	call func(instance any, ctx context.Context, req any) (any, error)
}

// Endpoint binds a service method to an HTTP verb and route template.
// Create endpoints with GET, DELETE, POST, PUT or PATCH.
//
// An Endpoint is plain data: registering it with a Service gives it a name,
// and the same value is passed to Call on the client side.
type Endpoint[S, Req, Res any] struct {
	e endpoint
}

func newEndpoint[S, Req, Res any](verb, route string, fn func(S, context.Context, *Req) (*Res, error)) *Endpoint[S, Req, Res] {
	return &Endpoint[S, Req, Res]{e: endpoint{
		verb:    verb,
		route:   route,
		reqType: reflect.TypeFor[Req](),
		resType: reflect.TypeFor[Res](),
		call: func(instance any, ctx context.Context, req any) (any, error) {
			s, ok := instance.(S)
			if !ok {
				return nil, Errorf(CodeInternal, "service instance is %T, not %v", instance, reflect.TypeFor[S]())
			}
			r, ok := req.(*Req)
			if !ok {
				return nil, Errorf(CodeInternal, "interceptor modified request type incorrectly")
			}
			return fn(s, ctx, r)
		},
	}}
}

// GET declares a body-less method; non-path fields travel in the query string.
// fn is usually a method expression such as (*PetService).GetPet.
func GET[S, Req, Res any](route string, fn func(S, context.Context, *Req) (*Res, error)) *Endpoint[S, Req, Res] {
	return newEndpoint("GET", route, fn)
}

// DELETE declares a body-less method; non-path fields travel in the query string.
func DELETE[S, Req, Res any](route string, fn func(S, context.Context, *Req) (*Res, error)) *Endpoint[S, Req, Res] {
	return newEndpoint("DELETE", route, fn)
}

// POST declares a method whose non-path fields travel in the body.
func POST[S, Req, Res any](route string, fn func(S, context.Context, *Req) (*Res, error)) *Endpoint[S, Req, Res] {
	return newEndpoint("POST", route, fn)
}

// PUT declares a method whose non-path fields travel in the body.
func PUT[S, Req, Res any](route string, fn func(S, context.Context, *Req) (*Res, error)) *Endpoint[S, Req, Res] {
	return newEndpoint("PUT", route, fn)
}

// PATCH declares a method whose non-path fields travel in the body.
func PATCH[S, Req, Res any](route string, fn func(S, context.Context, *Req) (*Res, error)) *Endpoint[S, Req, Res] {
	return newEndpoint("PATCH", route, fn)
}

// WithDescription sets the "description" option, used in generated schemas.
func (ep *Endpoint[S, Req, Res]) WithDescription(d string) *Endpoint[S, Req, Res] {
	return ep.WithOption("description", d)
}

// WithOption sets a free-form method option.
func (ep *Endpoint[S, Req, Res]) WithOption(key, value string) *Endpoint[S, Req, Res] {
	if ep.e.options == nil {
		ep.e.options = make(map[string]string)
	}
	ep.e.options[key] = value
	return ep
}

// WithStatus sets the success status. The default is 200.
func (ep *Endpoint[S, Req, Res]) WithStatus(status int) *Endpoint[S, Req, Res] {
	ep.e.status = status
	return ep
}

// WithUnaryInterceptor adds an interceptor to this endpoint.
// Endpoint interceptors execute after global and service interceptors.
func (ep *Endpoint[S, Req, Res]) WithUnaryInterceptor(i UnaryInterceptor) *Endpoint[S, Req, Res] {
	ep.e.interceptors = append(ep.e.interceptors, i)
	return ep
}

// Verb returns the HTTP verb.
func (ep *Endpoint[S, Req, Res]) Verb() string { return ep.e.verb }

// Route returns the route template as declared.
func (ep *Endpoint[S, Req, Res]) Route() string { return ep.e.route }

func (ep *Endpoint[S, Req, Res]) declaration() *endpoint { return &ep.e }

func (ep *Endpoint[S, Req, Res]) boundTo(S) {}

// Declaration is implemented by *Endpoint. The type parameter ties an
// endpoint to the service type it was declared for.
type Declaration[S any] interface {
	declaration() *endpoint
	boundTo(S)
}

// namedEndpoint is an endpoint registered under a method name.
type namedEndpoint struct {
	name string
	*endpoint
}

// Service declares a named group of methods implemented by S.
type Service[S any] struct {
	name         string
	methods      []namedEndpoint
	interceptors []UnaryInterceptor
	instance     any
}

// NewService starts a service declaration.
func NewService[S any](name string) *Service[S] {
	return &Service[S]{name: name}
}

// Name returns the service name.
func (s *Service[S]) Name() string { return s.name }

// Method adds an endpoint under the given method name.
func (s *Service[S]) Method(name string, d Declaration[S]) *Service[S] {
	e := *d.declaration()
	e.options = maps.Clone(e.options)
	s.methods = append(s.methods, namedEndpoint{name: name, endpoint: &e})
	return s
}

// WithUnaryInterceptor adds an interceptor to this service.
// Service interceptors execute after global interceptors but before endpoint interceptors.
// See App.WithUnaryInterceptor for the complete execution order.
func (s *Service[S]) WithUnaryInterceptor(i UnaryInterceptor) *Service[S] {
	s.interceptors = append(s.interceptors, i)
	return s
}

// Provide sets the instance served by the app's default resolver.
func (s *Service[S]) Provide(instance S) *Service[S] {
	s.instance = instance
	return s
}

func (s *Service[S]) registration() *registration {
	return &registration{
		name:         s.name,
		typ:          reflect.TypeFor[S](),
		methods:      s.methods,
		interceptors: s.interceptors,
		instance:     s.instance,
	}
}

// Registrar is implemented by *Service.
type Registrar interface {
	registration() *registration
}

type registration struct {
	name         string
	typ          reflect.Type
	methods      []namedEndpoint
	interceptors []UnaryInterceptor
	instance     any
}

func (r *registration) decl() reflection.ServiceDecl {
	decl := reflection.ServiceDecl{Name: r.name, Type: r.typ}
	for _, m := range r.methods {
		decl.Methods = append(decl.Methods, reflection.MethodDecl{
			Name:     m.name,
			Verb:     m.verb,
			Route:    m.route,
			Request:  m.reqType,
			Response: m.resType,
			Options:  m.options,
			Status:   m.status,
		})
	}
	return decl
}
