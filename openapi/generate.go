package openapi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/broady/routerpc/ir"
	"github.com/broady/routerpc/reflection"
)

const definitionsPrefix = "#/definitions/"

// DefaultVersion is the info.version of documents that do not set one.
const DefaultVersion = "0.0.1"

// Options configures document generation.
type Options struct {
	// Title overrides the document title. By default the title joins the
	// names of every registered service with ", ".
	Title string

	// Version is the API version. Defaults to DefaultVersion.
	Version string

	// Schemes defaults to ["http"].
	Schemes []string

	// MediaTypes are the codec media types used for consumes and produces.
	// Defaults to ["application/json"].
	MediaTypes []string
}

func (o Options) withDefaults(g *reflection.Graph) Options {
	if o.Title == "" {
		var names []string
		for _, s := range g.Services() {
			names = append(names, s.Name)
		}
		o.Title = strings.Join(names, ", ")
	}
	if o.Version == "" {
		o.Version = DefaultVersion
	}
	if len(o.Schemes) == 0 {
		o.Schemes = []string{"http"}
	}
	if len(o.MediaTypes) == 0 {
		o.MediaTypes = []string{"application/json"}
	}
	return o
}

// Generate builds a fresh document describing every method and message in g.
// It does not modify g, and generating twice from an unchanged graph yields
// equal documents.
func Generate(g *reflection.Graph, opts Options) *Document {
	opts = opts.withDefaults(g)
	doc := &Document{
		Swagger:     "2.0",
		Info:        Info{Version: opts.Version, Title: opts.Title},
		Schemes:     slices.Clone(opts.Schemes),
		Consumes:    slices.Clone(opts.MediaTypes),
		Produces:    slices.Clone(opts.MediaTypes),
		Paths:       make(map[string]map[string]*Operation),
		Definitions: make(map[string]*Schema),
	}

	gen := &generator{graph: g, opts: opts}
	for _, m := range g.Methods() {
		path := m.Path()
		verbs, ok := doc.Paths[path]
		if !ok {
			verbs = make(map[string]*Operation)
			doc.Paths[path] = verbs
		}
		verbs[strings.ToLower(m.Verb)] = gen.operation(m)
	}
	for _, msg := range g.Messages() {
		if msg.IsEmpty() {
			continue
		}
		doc.Definitions[msg.Name] = gen.object(msg.Fields)
	}
	return doc
}

type generator struct {
	graph *reflection.Graph
	opts  Options
}

func (gen *generator) operation(m *ir.Method) *Operation {
	req := gen.graph.Request(m)
	params := make([]*Parameter, 0, len(req.Fields)+1)

	if body := m.Locations.Body; len(body) > 0 {
		p := &Parameter{In: "body"}
		if len(body) == len(req.Fields) {
			p.Name = req.Name
			p.Schema = gen.reference(req.ID)
		} else {
			p.Name = m.Name + "_body"
			p.Schema = gen.object(subset(req, body))
		}
		params = append(params, p)
	}
	for _, f := range subset(req, m.Locations.Path) {
		p := gen.parameter("path", f)
		p.Required = true
		params = append(params, p)
	}
	for _, f := range subset(req, m.Locations.Query) {
		params = append(params, gen.parameter("query", f))
	}

	return &Operation{
		Tags:     []string{m.Service},
		Produces: slices.Clone(gen.opts.MediaTypes),
		Responses: Responses{
			Default: &Response{
				Description: m.Description(),
				Schema:      gen.reference(m.Response),
			},
		},
		Parameters: params,
	}
}

// parameter describes a path or query field. Registration only lets
// scalars and repeated scalars reach here; Time travels as a string.
func (gen *generator) parameter(in string, f ir.Field) *Parameter {
	p := &Parameter{
		In:          in,
		Name:        f.Name,
		Description: f.Description(),
		Required:    isRequired(f),
		Type:        "string",
	}
	switch s := f.Shape.(type) {
	case *ir.Scalar:
		p.Type = primitiveOr(s.ScalarKind, "string")
	case *ir.Repeated:
		if item, ok := s.Item.(*ir.Scalar); ok {
			p.Type = "array"
			p.Items = &Schema{Type: primitiveOr(item.ScalarKind, "string")}
			p.CollectionFormat = "multi"
		}
	}
	return p
}

// object returns the structural definition of a set of fields.
func (gen *generator) object(fields []ir.Field) *Schema {
	s := &Schema{Type: "object"}
	for _, f := range fields {
		if s.Properties == nil {
			s.Properties = make(map[string]*Schema, len(fields))
		}
		prop := gen.descriptor(f.Shape)
		if prop.Ref == "" {
			prop.Description = f.Description()
		}
		s.Properties[f.Name] = prop
		if isRequired(f) {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// descriptor dispatches on the field shape.
func (gen *generator) descriptor(shape ir.Shape) *Schema {
	switch s := shape.(type) {
	case *ir.Scalar:
		if t, ok := primitives[s.ScalarKind]; ok {
			return &Schema{Type: t}
		}
		// No primitive: handled like a message reference, which resolves
		// to nothing.
		return gen.reference("")
	case *ir.Repeated:
		return &Schema{Type: "array", Items: gen.descriptor(s.Item)}
	case *ir.Mapped:
		return &Schema{Type: "object", AdditionalProperties: gen.descriptor(s.Value)}
	case *ir.MessageRef:
		return gen.reference(s.ID)
	default:
		panic(fmt.Sprintf("openapi: unhandled shape %T", shape))
	}
}

// reference points at a message definition. The Empty sentinel and
// unknown messages yield the unconstrained schema {}.
func (gen *generator) reference(id ir.MessageID) *Schema {
	if id == ir.EmptyID {
		return &Schema{}
	}
	msg, ok := gen.graph.Message(id)
	if !ok {
		return &Schema{}
	}
	return &Schema{Ref: definitionsPrefix + msg.Name}
}

var primitives = map[ir.ScalarKind]string{
	ir.ScalarBool:   "boolean",
	ir.ScalarInt:    "integer",
	ir.ScalarUint:   "integer",
	ir.ScalarFloat:  "double",
	ir.ScalarString: "string",
	ir.ScalarBytes:  "string",
}

func primitiveOr(k ir.ScalarKind, fallback string) string {
	if t, ok := primitives[k]; ok {
		return t
	}
	return fallback
}

func subset(msg *ir.Message, names []string) []ir.Field {
	fields := make([]ir.Field, 0, len(names))
	for _, name := range names {
		if f, ok := msg.Field(name); ok {
			fields = append(fields, *f)
		}
	}
	return fields
}

func isRequired(f ir.Field) bool {
	for _, rule := range strings.Split(f.Options["validate"], ",") {
		if rule == "required" {
			return true
		}
	}
	return false
}
