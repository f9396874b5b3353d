// Package routerpc is an RPC framework over HTTP. Services are groups of
// typed methods; every method binds to an HTTP verb and a route template,
// and each request field travels in the path, the query string or the body
// as decided by package bind.
//
// The same declarations drive the server (App), the client (Call) and the
// Swagger document (package openapi), so all three agree on the wire format.
package routerpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"slices"
	"sync"

	"github.com/broady/routerpc/bind"
	"github.com/broady/routerpc/ir"
	"github.com/broady/routerpc/reflection"
)

// ErrSealed is returned by Register after Handler has been called.
var ErrSealed = errors.New("routerpc: app is serving; registration is closed")

const defaultMaxRequestBodySize = 1 << 20 // 1MB

// App is the central router for services.
// It owns the reflect graph, middleware, interceptors, and error handling.
// Use Handler() to get an http.Handler for use with http.ListenAndServe.
type App struct {
	mu        sync.Mutex
	graph     *reflection.Graph
	routes    []*route
	instances Instances
	sealed    bool
	handler   http.Handler

	codec              Codec
	resolver           Resolver
	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	middlewares        []func(http.Handler) http.Handler
	logger             *slog.Logger
	maxRequestBodySize uint64
}

// route is one dispatchable (verb, path) pair.
type route struct {
	method       *ir.Method
	request      *ir.Message
	endpoint     *endpoint
	serviceType  reflect.Type
	interceptors []UnaryInterceptor // service, then endpoint
}

func NewApp() *App {
	return &App{
		graph:              reflection.NewGraph(),
		instances:          make(Instances),
		codec:              JSONCodec{},
		maxRequestBodySize: defaultMaxRequestBodySize,
	}
}

// WithCodec sets the payload codec. The default is JSONCodec.
func (a *App) WithCodec(c Codec) *App {
	a.codec = c
	return a
}

// WithResolver replaces the default resolver, which serves the instances
// given to Service.Provide.
func (a *App) WithResolver(r Resolver) *App {
	a.resolver = r
	return a
}

// WithErrorTransformer adds a custom error transformer.
// It returns the app for chaining.
func (a *App) WithErrorTransformer(fn ErrorTransformer) *App {
	a.errorTransformer = fn
	return a
}

// WithMaskInternalErrors enables masking of internal error messages.
// This is useful in production to avoid leaking sensitive information.
// The original error is still available to interceptors and logging.
func (a *App) WithMaskInternalErrors() *App {
	a.maskInternalErrors = true
	return a
}

// WithUnaryInterceptor adds a global interceptor.
// Global interceptors are executed before service-level and endpoint-level interceptors.
//
// Interceptor execution order:
//  1. Global interceptors (added via App.WithUnaryInterceptor)
//  2. Service interceptors (added via Service.WithUnaryInterceptor)
//  3. Endpoint interceptors (added via Endpoint.WithUnaryInterceptor)
//  4. Service method
//
// Within each level, interceptors execute in the order they were added.
func (a *App) WithUnaryInterceptor(i UnaryInterceptor) *App {
	a.interceptors = append(a.interceptors, i)
	return a
}

// WithMiddleware adds an HTTP middleware to wrap the app.
// Middleware is applied in the order added (first added is outermost).
func (a *App) WithMiddleware(mw func(http.Handler) http.Handler) *App {
	a.middlewares = append(a.middlewares, mw)
	return a
}

// WithLogger sets a custom logger for the app.
// If not set, slog.Default() will be used.
func (a *App) WithLogger(logger *slog.Logger) *App {
	a.logger = logger
	return a
}

// WithMaxRequestBodySize sets the maximum request body size.
// A value of 0 means no limit. Default is 1MB (1 << 20).
func (a *App) WithMaxRequestBodySize(size uint64) *App {
	a.maxRequestBodySize = size
	return a
}

func (a *App) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

// Codec returns the payload codec.
func (a *App) Codec() Codec { return a.codec }

// Graph returns the reflect graph of every registered service.
// The graph must not be modified.
func (a *App) Graph() *reflection.Graph { return a.graph }

// Register adds services to the app. Each service is registered atomically:
// on error, it and every service after it are left out.
// Configuration errors are *reflection.ConfigError values.
func (a *App) Register(services ...Registrar) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return ErrSealed
	}

	for _, s := range services {
		reg := s.registration()
		if err := a.graph.Register(reg.decl()); err != nil {
			return err
		}
		svc := a.graph.Services()[len(a.graph.Services())-1]
		for i, m := range svc.Methods {
			ep := reg.methods[i].endpoint
			a.routes = append(a.routes, &route{
				method:       m,
				request:      a.graph.Request(m),
				endpoint:     ep,
				serviceType:  reg.typ,
				interceptors: slices.Concat(reg.interceptors, ep.interceptors),
			})
			a.log().Debug("registered method",
				slog.String("endpoint", m.FullName()),
				slog.String("route", bind.Pattern(m.Verb, m.Route)))
		}
		if reg.instance != nil {
			a.instances[reg.typ] = reg.instance
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (a *App) MustRegister(services ...Registrar) *App {
	if err := a.Register(services...); err != nil {
		panic(err)
	}
	return a
}

// Handler returns an http.Handler for use with http.ListenAndServe or other
// HTTP servers. The returned handler includes all configured middleware.
//
// The first call seals the app: later Register calls fail with ErrSealed.
//
// Example:
//
//	app := routerpc.NewApp().WithMiddleware(middleware.Compress)
//	http.ListenAndServe(":8080", app.Handler())
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handler != nil {
		return a.handler
	}
	a.sealed = true

	mux := http.NewServeMux()
	for _, rt := range a.routes {
		mux.Handle(bind.Pattern(rt.method.Verb, rt.method.Route), a.serveRoute(rt))
	}
	mux.Handle("/", a.fallback(mux))

	var h http.Handler = mux
	// Apply middleware in reverse order so first added is outermost
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		h = a.middlewares[i](h)
	}
	a.handler = h
	return h
}

// fallback answers requests no route matched with an error envelope,
// distinguishing unknown paths from known paths with the wrong verb.
func (a *App) fallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var allowed []string
		for _, verb := range []string{"GET", "DELETE", "POST", "PUT", "PATCH"} {
			probe := r.Clone(r.Context())
			probe.Method = verb
			if _, pattern := mux.Handler(probe); pattern != "" && pattern != "/" {
				allowed = append(allowed, verb)
			}
		}
		if len(allowed) == 0 {
			writeError(w, a.codec, NewError(CodeNotFound, "route not found"), a.logger)
			return
		}
		for _, verb := range allowed {
			w.Header().Add("Allow", verb)
		}
		writeError(w, a.codec, Errorf(CodeMethodNotAllowed, "method %s not allowed", r.Method), a.logger)
	})
}

// Routes describes every registered method as its http.ServeMux pattern
// and endpoint, e.g. "GET /pet/{id} -> PetService.get_pet".
func (a *App) Routes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	patterns := make([]string, len(a.routes))
	for i, rt := range a.routes {
		patterns[i] = fmt.Sprintf("%s -> %s", bind.Pattern(rt.method.Verb, rt.method.Route), rt.method.FullName())
	}
	return patterns
}
