package routerpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/broady/routerpc/ir"
)

var (
	validate      = validator.New(validator.WithRequiredStructEnabled())
	schemaDecoder = newSchemaDecoder()
	schemaEncoder = newSchemaEncoder()
)

func newSchemaDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("json")
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(time.Time{}, func(s string) reflect.Value {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(t)
	})
	return d
}

func newSchemaEncoder() *schema.Encoder {
	e := schema.NewEncoder()
	e.SetAliasTag("json")
	e.RegisterEncoder(time.Time{}, func(v reflect.Value) string {
		return v.Interface().(time.Time).Format(time.RFC3339Nano)
	})
	return e
}

// serveRoute returns the handler for one registered method.
func (a *App) serveRoute(rt *route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.log().Error("PANIC recovered",
					slog.String("endpoint", rt.method.FullName()),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
				writeError(w, a.codec, NewError(CodeInternal, fmt.Sprintf("internal server error (panic): %v", rec)), a.logger)
			}
		}()

		ctx := newContext(r.Context(), w, r, rt.method.Service, rt.method.Name)

		req, err := a.decodeRequest(w, r, rt)
		if err != nil {
			a.handleError(w, err)
			return
		}
		if err := validate.StructCtx(ctx, req.Interface()); err != nil {
			a.handleError(w, err)
			return
		}

		instance, err := a.resolve(ctx, rt)
		if err != nil {
			a.handleError(w, err)
			return
		}

		final := func(c context.Context, req any) (any, error) {
			return rt.endpoint.call(instance, c, req)
		}
		chain := chainInterceptors(slices.Concat(a.interceptors, rt.interceptors))

		var res any
		if chain != nil {
			res, err = chain(ctx, req.Interface(), final)
		} else {
			res, err = final(ctx, req.Interface())
		}
		if err != nil {
			a.handleError(w, err)
			return
		}
		a.writeResponse(w, rt, res)
	}
}

func (a *App) resolve(ctx context.Context, rt *route) (any, error) {
	var resolver Resolver = a.instances
	if a.resolver != nil {
		resolver = a.resolver
	}
	instance, err := resolver.Resolve(ctx, rt.serviceType)
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			return nil, Errorf(CodeUnavailable, "unknown service %s", rt.method.Service)
		}
		return nil, err
	}
	return instance, nil
}

// decodeRequest builds the request message from the HTTP request.
//
// BODY fields are copied from the decoded payload; nothing else in the
// payload is kept. Otherwise QUERY fields are decoded from the query string,
// and values that are absent or do not parse are left unset. PATH fields are
// decoded last and overwrite anything decoded before them.
func (a *App) decodeRequest(w http.ResponseWriter, r *http.Request, rt *route) (reflect.Value, error) {
	locs := rt.method.Locations
	req := reflect.New(rt.endpoint.reqType)

	if len(locs.Body) > 0 {
		data, err := a.readBody(w, r)
		if err != nil {
			return req, err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			payload := reflect.New(rt.endpoint.reqType)
			if err := a.codec.Decode(data, payload.Interface()); err != nil {
				return req, err
			}
			for _, name := range locs.Body {
				f, _ := rt.request.Field(name)
				f.Set(req, f.Get(payload))
			}
		}
	} else {
		query := r.URL.Query()
		for _, name := range locs.Query {
			if vals, ok := query[name]; ok {
				_ = decodeField(req, rt.request, name, vals)
			}
		}
	}

	for _, name := range locs.Path {
		if err := decodeField(req, rt.request, name, []string{r.PathValue(name)}); err != nil {
			return req, Errorf(CodeInvalidArgument, "invalid path parameter %s: %v", name, err)
		}
	}
	return req, nil
}

func (a *App) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body := r.Body
	if a.maxRequestBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, int64(a.maxRequestBodySize))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, Errorf(CodeRequestTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, Errorf(CodeInvalidArgument, "failed to read request body: %v", err)
	}
	return data, nil
}

// decodeField decodes vals into the named field of req. The field is only
// written when decoding succeeds.
func decodeField(req reflect.Value, msg *ir.Message, name string, vals []string) error {
	f, ok := msg.Field(name)
	if !ok {
		return fmt.Errorf("unknown field %s", name)
	}
	scratch := reflect.New(msg.Type)
	if err := schemaDecoder.Decode(scratch.Interface(), url.Values{name: vals}); err != nil {
		return err
	}
	f.Set(req, f.Get(scratch))
	return nil
}

func (a *App) writeResponse(w http.ResponseWriter, rt *route, res any) {
	if v := reflect.ValueOf(res); !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		res = reflect.New(rt.endpoint.resType).Interface()
	}
	data, err := a.codec.Encode(res)
	if err != nil {
		a.log().Error("failed to encode response",
			slog.String("endpoint", rt.method.FullName()),
			slog.Any("error", err))
		writeError(w, a.codec, NewError(CodeInternal, "failed to encode response"), a.logger)
		return
	}
	w.Header().Set("Content-Type", a.codec.MediaType())
	w.WriteHeader(rt.method.Status)
	if _, err := w.Write(data); err != nil {
		a.log().Debug("failed to write response",
			slog.String("endpoint", rt.method.FullName()),
			slog.Any("error", err))
	}
}

func (a *App) handleError(w http.ResponseWriter, err error) {
	var rpcErr *Error
	if a.errorTransformer != nil {
		rpcErr = a.errorTransformer(err)
	}
	if rpcErr == nil {
		rpcErr = DefaultErrorTransformer(err)
	}
	if a.maskInternalErrors && rpcErr.Code == CodeInternal {
		rpcErr = &Error{Status: rpcErr.Status, Code: CodeInternal, Message: "internal server error"}
	}
	writeError(w, a.codec, rpcErr, a.logger)
}
