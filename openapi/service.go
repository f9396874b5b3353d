package openapi

import (
	"context"

	"github.com/broady/routerpc"
)

// ServiceName is the name of the reflection service.
const ServiceName = "Reflect"

// SchemaRoute is where the reflection service serves the document.
const SchemaRoute = "./openapi.json"

// Reflect serves the Swagger document of the app it is registered with.
type Reflect struct {
	app  *routerpc.App
	opts Options
}

// GetOpenAPISchema generates the document from the app's current graph.
func (r *Reflect) GetOpenAPISchema(ctx context.Context, _ *routerpc.Empty) (*Document, error) {
	opts := r.opts
	if len(opts.MediaTypes) == 0 {
		opts.MediaTypes = []string{r.app.Codec().MediaType()}
	}
	return Generate(r.app.Graph(), opts), nil
}

// SchemaEndpoint is the reflection method, usable with routerpc.Call.
var SchemaEndpoint = routerpc.GET[*Reflect, routerpc.Empty, Document](SchemaRoute, (*Reflect).GetOpenAPISchema).
	WithDescription("Swagger 2.0 description of every registered service")

// Register adds the reflection service to app. The document it serves
// describes every service in app, the reflection service included.
func Register(app *routerpc.App, opts Options) error {
	svc := routerpc.NewService[*Reflect](ServiceName).
		Method("get_openapi_schema", SchemaEndpoint).
		Provide(&Reflect{app: app, opts: opts})
	return app.Register(svc)
}
