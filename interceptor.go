package routerpc

import (
	"context"
)

// HandlerFunc represents the next handler in an interceptor chain.
// It is passed to [UnaryInterceptor] functions to invoke the next interceptor
// or the final handler.
type HandlerFunc func(ctx context.Context, req any) (res any, err error)

// UnaryInterceptor is a hook that wraps method execution.
//
// Interceptors receive *Context for access to call metadata:
//
//	func timing(ctx *routerpc.Context, req any, handler routerpc.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := handler(ctx, req)
//	    log.Printf("%s took %v", ctx.EndpointID(), time.Since(start))
//	    return res, err
//	}
//
// The handler parameter is the next handler in the chain. Interceptors can:
//   - Inspect/modify the request before calling handler
//   - Inspect/modify the response after calling handler
//   - Short-circuit by returning an error without calling handler
//   - Add values to context using context.WithValue
//
// req/res are pointers to the request/response structs.
type UnaryInterceptor func(ctx *Context, req any, handler HandlerFunc) (res any, err error)

// chainInterceptors combines multiple interceptors into a single one.
// The first interceptor in the slice is the outer-most one (runs first).
func chainInterceptors(interceptors []UnaryInterceptor) UnaryInterceptor {
	if len(interceptors) == 0 {
		return nil
	}
	if len(interceptors) == 1 {
		return interceptors[0]
	}
	return func(ctx *Context, req any, handler HandlerFunc) (any, error) {
		// Chain: i[0] -> i[1] -> ... -> handler
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chain
			chain = func(c context.Context, req any) (any, error) {
				rc, ok := c.(*Context)
				if !ok {
					// An interceptor wrapped the context; keep the values it
					// added while restoring call metadata.
					rc = rewrap(c, ctx)
				}
				return current(rc, req, next)
			}
		}
		return chain(ctx, req)
	}
}

// rewrap returns a Context carrying the call metadata of orig on top of c.
func rewrap(c context.Context, orig *Context) *Context {
	cp := *orig
	cp.Context = c
	return &cp
}
