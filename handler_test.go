package routerpc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/broady/routerpc/testutil"
)

func TestHandler_GetPathParameter(t *testing.T) {
	app, _ := newTestApp(t)

	w := testutil.NewRequest().GET("/pet/1").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, Pet{ID: 1, Name: "Rex", Tag: "dog"})
}

func TestHandler_PostBodyWithStatus(t *testing.T) {
	app, store := newTestApp(t)

	w := testutil.NewRequest().
		POST("/pet").
		WithJSON(Pet{Name: "Tom", Tag: "cat"}).
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusCreated)
	testutil.AssertJSONResponse(t, w, Pet{ID: 2, Name: "Tom", Tag: "cat"})
	if _, ok := store.pets[2]; !ok {
		t.Error("expected pet to be stored")
	}
}

func TestHandler_PutMixesPathAndBody(t *testing.T) {
	app, store := newTestApp(t)

	// The body's id is not a BODY field and must be ignored.
	w := testutil.NewRequest().
		PUT("/pet/1").
		WithBody(`{"id": 99, "name": "Max", "tag": "wolf"}`).
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, Pet{ID: 1, Name: "Max", Tag: "wolf"})
	if store.pets[1].Name != "Max" {
		t.Errorf("expected pet 1 to be renamed, got %+v", store.pets[1])
	}
	if _, ok := store.pets[99]; ok {
		t.Error("body id must not reach the request")
	}
}

func TestHandler_DeleteReturnsEmpty(t *testing.T) {
	app, store := newTestApp(t)

	w := testutil.NewRequest().DELETE("/pet/1").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	if got := strings.TrimSpace(w.Body.String()); got != "{}" {
		t.Errorf("expected {}, got %s", got)
	}
	if len(store.pets) != 0 {
		t.Error("expected pet to be deleted")
	}
}

func TestHandler_QueryParameters(t *testing.T) {
	app, store := newTestApp(t)
	store.pets[2] = Pet{ID: 2, Name: "Tom", Tag: "cat"}
	store.pets[3] = Pet{ID: 3, Name: "Fido", Tag: "dog"}
	store.next = 4

	w := testutil.NewRequest().
		GET("/pets").
		WithQuery("tag", "dog").
		WithQuery("limit", "1").
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, PetList{Pets: []Pet{{ID: 1, Name: "Rex", Tag: "dog"}}})
}

func TestHandler_QueryIgnoresAbsentAndMalformed(t *testing.T) {
	app, _ := newTestApp(t)

	w := testutil.NewRequest().
		GET("/pets").
		WithQuery("limit", "lots").
		WithQuery("unknown", "x").
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, PetList{Pets: []Pet{{ID: 1, Name: "Rex", Tag: "dog"}}})
}

func TestHandler_PathWinsOverQuery(t *testing.T) {
	app, _ := newTestApp(t)

	w := testutil.NewRequest().
		GET("/lookup/7").
		WithQuery("id", "3").
		WithQuery("name", "rex").
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, lookup{ID: 7, Name: "rex"})
}

func TestHandler_InvalidPathValue(t *testing.T) {
	app, _ := newTestApp(t)

	w := testutil.NewRequest().GET("/pet/abc").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusBadRequest)
	testutil.AssertJSONError(t, w, string(CodeInvalidArgument))
}

func TestHandler_MalformedBody(t *testing.T) {
	app, _ := newTestApp(t)

	w := testutil.NewRequest().
		POST("/pet").
		WithBody(`{"name": `).
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusBadRequest)
	testutil.AssertJSONError(t, w, string(CodeInvalidArgument))
}

func TestHandler_EmptyBodyIsEmptyMessage(t *testing.T) {
	app, _ := newTestApp(t)

	// An empty body decodes to an empty message, which then fails validation.
	w := testutil.NewRequest().POST("/pet").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusBadRequest)
	errResp := testutil.AssertJSONError(t, w, string(CodeInvalidArgument))
	if errResp.Details["Name"] != "required" {
		t.Errorf("expected Name to be reported as required, got %v", errResp.Details)
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	app, _ := newTestApp(t)
	app.WithMaxRequestBodySize(16)

	w := testutil.NewRequest().
		POST("/pet").
		WithJSON(Pet{Name: strings.Repeat("x", 64)}).
		Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusRequestEntityTooLarge)
	testutil.AssertJSONError(t, w, string(CodeRequestTooLarge))
}

func TestHandler_ApplicationError(t *testing.T) {
	app, _ := newTestApp(t)

	w := testutil.NewRequest().GET("/pet/42").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusNotFound)
	errResp := testutil.AssertJSONError(t, w, string(CodeNotFound))
	if errResp.Message != "pet 42 not found" {
		t.Errorf("unexpected message %q", errResp.Message)
	}
}

func TestHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Handler()

	w := testutil.NewRequest().GET("/nowhere").Serve(h)
	testutil.AssertStatus(t, w, http.StatusNotFound)
	testutil.AssertJSONError(t, w, string(CodeNotFound))

	w = testutil.NewRequest().PATCH("/pet/1").Serve(h)
	testutil.AssertStatus(t, w, http.StatusMethodNotAllowed)
	testutil.AssertJSONError(t, w, string(CodeMethodNotAllowed))
	allow := w.Header().Values("Allow")
	if strings.Join(allow, ",") != "GET,DELETE,PUT" {
		t.Errorf("unexpected Allow header %v", allow)
	}
}

func TestHandler_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	app, _ := newTestApp(t)
	app.WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	w := testutil.NewRequest().POST("/panic").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusInternalServerError)
	errResp := testutil.AssertJSONError(t, w, string(CodeInternal))
	if !strings.Contains(errResp.Message, "boom") {
		t.Errorf("expected panic value in message, got %q", errResp.Message)
	}
	if !strings.Contains(buf.String(), "PANIC recovered") {
		t.Error("expected panic to be logged")
	}
}

func TestHandler_MaskInternalErrors(t *testing.T) {
	app, _ := newTestApp(t)
	app.WithMaskInternalErrors().WithLogger(slog.New(slog.DiscardHandler))

	w := testutil.NewRequest().POST("/panic").Serve(app.Handler())
	testutil.AssertStatus(t, w, http.StatusInternalServerError)

	app2, _ := newTestApp(t)
	app2.WithMaskInternalErrors().WithUnaryInterceptor(func(ctx *Context, req any, handler HandlerFunc) (any, error) {
		return nil, errors.New("database password is hunter2")
	})
	w = testutil.NewRequest().GET("/pet/1").Serve(app2.Handler())
	testutil.AssertStatus(t, w, http.StatusInternalServerError)
	errResp := testutil.AssertJSONError(t, w, string(CodeInternal))
	if errResp.Message != "internal server error" {
		t.Errorf("expected masked message, got %q", errResp.Message)
	}
}

func TestHandler_ErrorTransformer(t *testing.T) {
	errTeapot := errors.New("teapot")
	app, _ := newTestApp(t)
	app.WithErrorTransformer(func(err error) *Error {
		if errors.Is(err, errTeapot) {
			return NewError(CodeUnavailable, "short and stout").WithStatus(http.StatusTeapot)
		}
		return nil
	}).WithUnaryInterceptor(func(ctx *Context, req any, handler HandlerFunc) (any, error) {
		if ctx.Method() == "get_pet" {
			return nil, errTeapot
		}
		return handler(ctx, req)
	})
	h := app.Handler()

	w := testutil.NewRequest().GET("/pet/1").Serve(h)
	testutil.AssertStatus(t, w, http.StatusTeapot)
	testutil.AssertJSONError(t, w, string(CodeUnavailable))

	// Errors the transformer declines fall through to the default mapping.
	w = testutil.NewRequest().GET("/pet/abc").Serve(h)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestHandler_UnknownService(t *testing.T) {
	app := NewApp().MustRegister(NewService[*petStore]("PetService").Method("get_pet", getPet))

	w := testutil.NewRequest().GET("/pet/1").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusServiceUnavailable)
	errResp := testutil.AssertJSONError(t, w, string(CodeUnavailable))
	if errResp.Message != "unknown service PetService" {
		t.Errorf("unexpected message %q", errResp.Message)
	}
}

func TestHandler_CustomResolver(t *testing.T) {
	store := newPetStore()
	store.pets[1] = Pet{ID: 1, Name: "Resolved"}
	var resolved int
	app := NewApp().
		WithResolver(ResolverFunc(func(ctx context.Context, typ reflect.Type) (any, error) {
			resolved++
			return store, nil
		})).
		MustRegister(NewService[*petStore]("PetService").Method("get_pet", getPet))

	w := testutil.NewRequest().GET("/pet/1").Serve(app.Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSONResponse(t, w, Pet{ID: 1, Name: "Resolved"})
	if resolved != 1 {
		t.Errorf("expected one resolution per call, got %d", resolved)
	}
}

func TestHandler_SetHeaderFromHandlerContext(t *testing.T) {
	app, _ := newTestApp(t)
	app.WithUnaryInterceptor(func(ctx *Context, req any, handler HandlerFunc) (any, error) {
		SetHeader(ctx, "X-Endpoint", ctx.EndpointID())
		return handler(ctx, req)
	})

	w := testutil.NewRequest().GET("/pet/1").Serve(app.Handler())

	testutil.AssertHeader(t, w, "X-Endpoint", "PetService.get_pet")
}
