package routerpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// ErrUnknownService is returned by resolvers that have no instance for a
// service type. The server answers such calls with unavailable.
var ErrUnknownService = errors.New("unknown service")

// Resolver supplies the live instance that serves a call.
// typ is the S of the Service[S] declaration.
type Resolver interface {
	Resolve(ctx context.Context, typ reflect.Type) (any, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(ctx context.Context, typ reflect.Type) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, typ reflect.Type) (any, error) {
	return f(ctx, typ)
}

// Instances is a Resolver backed by a fixed set of instances keyed by type.
// It is the app's default resolver, filled by Service.Provide.
type Instances map[reflect.Type]any

// Resolve implements Resolver.
func (m Instances) Resolve(_ context.Context, typ reflect.Type) (any, error) {
	if v, ok := m[typ]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownService, typ)
}

// Add registers instance under its dynamic type.
func (m Instances) Add(instance any) {
	m[reflect.TypeOf(instance)] = instance
}
