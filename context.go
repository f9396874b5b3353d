package routerpc

import (
	"context"
	"net/http"
)

type contextKey struct {
	name string
}

var rpcContextKey = &contextKey{"routerpc"}

// Context carries request metadata through interceptors and handlers.
// It implements context.Context, so handlers receive it as their ctx.
type Context struct {
	context.Context

	service string
	method  string
	verb    string
	route   string
	request *http.Request
	writer  http.ResponseWriter
}

// NewContext creates a Context for the given service and method without an
// HTTP exchange. It is useful for testing interceptors.
func NewContext(parent context.Context, service, method string) *Context {
	return newContext(parent, nil, nil, service, method)
}

func newContext(parent context.Context, w http.ResponseWriter, r *http.Request, service, method string) *Context {
	c := &Context{
		service: service,
		method:  method,
		request: r,
		writer:  w,
	}
	if r != nil {
		c.verb = r.Method
		c.route = r.Pattern
	}
	c.Context = context.WithValue(parent, rpcContextKey, c)
	return c
}

// FromContext returns the Context stored in ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	if c, ok := ctx.(*Context); ok {
		return c, true
	}
	c, ok := ctx.Value(rpcContextKey).(*Context)
	return c, ok
}

// Service returns the service name of the current call.
func (c *Context) Service() string { return c.service }

// Method returns the method name of the current call.
func (c *Context) Method() string { return c.method }

// EndpointID returns "Service.Method".
func (c *Context) EndpointID() string { return c.service + "." + c.method }

// Verb returns the HTTP verb of the current call, or "" outside a request.
func (c *Context) Verb() string { return c.verb }

// Route returns the matched http.ServeMux pattern, e.g. "GET /pet/{id}".
func (c *Context) Route() string { return c.route }

// HTTPRequest returns the underlying request, or nil outside a request.
func (c *Context) HTTPRequest() *http.Request { return c.request }

// HTTPWriter returns the underlying response writer, or nil outside a request.
func (c *Context) HTTPWriter() http.ResponseWriter { return c.writer }

// SetHeader sets an HTTP response header. It is a no-op outside a request.
func (c *Context) SetHeader(key, value string) {
	if c.writer != nil {
		c.writer.Header().Set(key, value)
	}
}

// RequestFromContext returns the HTTP request from the context.
func RequestFromContext(ctx context.Context) *http.Request {
	if c, ok := FromContext(ctx); ok {
		return c.request
	}
	return nil
}

// SetHeader sets an HTTP response header on the call carried by ctx.
func SetHeader(ctx context.Context, key, value string) {
	if c, ok := FromContext(ctx); ok {
		c.SetHeader(key, value)
	}
}
