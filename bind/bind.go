// Package bind decides where each request field travels on the wire.
//
// A method's request fields are partitioned into PATH, QUERY and BODY
// from nothing but its HTTP verb, its route template and the ordered field
// names of its request message. The server dispatcher, the client and the
// schema generator all call [Locate], so the documented API and the
// dispatched API agree.
package bind

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrUnknownPlaceholder is returned when a route placeholder names a
	// field the request message does not declare.
	ErrUnknownPlaceholder = errors.New("route placeholder names unknown field")

	// ErrInvalidTemplate is returned for malformed route templates.
	ErrInvalidTemplate = errors.New("invalid route template")

	// ErrUnsupportedVerb is returned for verbs other than GET, DELETE, POST, PUT and PATCH.
	ErrUnsupportedVerb = errors.New("unsupported HTTP verb")
)

// Location is where a request field is carried.
type Location int

const (
	Path Location = iota
	Query
	Body
)

// String returns the Swagger "in" value for the location.
func (l Location) String() string {
	switch l {
	case Path:
		return "path"
	case Query:
		return "query"
	case Body:
		return "body"
	default:
		return "unknown"
	}
}

// Assignment maps each request field to exactly one location.
// The zero value assigns nothing.
type Assignment struct {
	// Path, Query and Body list field names in declaration order.
	Path  []string
	Query []string
	Body  []string

	loc map[string]Location
}

// Of returns the location assigned to a field.
func (a Assignment) Of(name string) (Location, bool) {
	l, ok := a.loc[name]
	return l, ok
}

// Len returns the number of assigned fields.
func (a Assignment) Len() int { return len(a.loc) }

// HasBody reports whether verb carries a request body.
func HasBody(verb string) bool {
	switch verb {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

// ValidVerb reports whether verb is one of the supported verbs.
func ValidVerb(verb string) bool {
	switch verb {
	case "GET", "DELETE", "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

// Locate assigns every name in fields to PATH, QUERY or BODY.
//
// Placeholders in template map to PATH. Remaining fields go to QUERY for
// body-less verbs (GET, DELETE) and to BODY for body-bearing verbs
// (POST, PUT, PATCH).
func Locate(verb, template string, fields []string) (Assignment, error) {
	if !ValidVerb(verb) {
		return Assignment{}, fmt.Errorf("%w: %q", ErrUnsupportedVerb, verb)
	}
	placeholders, err := Placeholders(template)
	if err != nil {
		return Assignment{}, err
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f] = true
	}
	onPath := make(map[string]bool, len(placeholders))
	for _, p := range placeholders {
		if !declared[p] {
			return Assignment{}, fmt.Errorf("%w: {%s} in %q", ErrUnknownPlaceholder, p, template)
		}
		onPath[p] = true
	}

	a := Assignment{loc: make(map[string]Location, len(fields))}
	body := HasBody(verb)
	for _, f := range fields {
		switch {
		case onPath[f]:
			a.Path = append(a.Path, f)
			a.loc[f] = Path
		case body:
			a.Body = append(a.Body, f)
			a.loc[f] = Body
		default:
			a.Query = append(a.Query, f)
			a.loc[f] = Query
		}
	}
	return a, nil
}

// Normalize strips the relative marker from a template and guarantees a
// leading slash: "./pet/{id}" becomes "/pet/{id}". Only a single leading
// "." is a marker; "../pet" keeps its dot segment and fails Placeholders.
func Normalize(template string) string {
	p := template
	if p == "." {
		p = ""
	} else {
		p = strings.TrimPrefix(p, "./")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Placeholders returns the {name} placeholders of template in order.
// Each placeholder must fill a whole path segment and appear at most once.
// Dot segments are rejected.
func Placeholders(template string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for _, seg := range strings.Split(Normalize(template), "/") {
		if seg == "." || seg == ".." {
			return nil, fmt.Errorf("%w: dot segment %q in %q", ErrInvalidTemplate, seg, template)
		}
		open := strings.IndexByte(seg, '{')
		end := strings.IndexByte(seg, '}')
		if open < 0 && end < 0 {
			continue
		}
		if open != 0 || end != len(seg)-1 || strings.Count(seg, "{") != 1 || strings.Count(seg, "}") != 1 {
			return nil, fmt.Errorf("%w: segment %q of %q", ErrInvalidTemplate, seg, template)
		}
		name := seg[1 : len(seg)-1]
		if !isIdent(name) {
			return nil, fmt.Errorf("%w: placeholder {%s} in %q is not an identifier", ErrInvalidTemplate, name, template)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate placeholder {%s} in %q", ErrInvalidTemplate, name, template)
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Expand substitutes path-escaped values into the placeholders of template
// and returns the normalized path.
func Expand(template string, values map[string]string) (string, error) {
	segs := strings.Split(Normalize(template), "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, "{") {
			continue
		}
		name := strings.Trim(seg, "{}")
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("missing value for path placeholder {%s}", name)
		}
		segs[i] = url.PathEscape(v)
	}
	return strings.Join(segs, "/"), nil
}

// Signature identifies the routes that http.ServeMux cannot tell apart:
// placeholder names are erased, so "GET /pet/{id}" and "GET /pet/{name}"
// share the signature "GET /pet/{}".
func Signature(verb, template string) string {
	segs := strings.Split(Normalize(template), "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, "{") {
			segs[i] = "{}"
		}
	}
	return verb + " " + strings.Join(segs, "/")
}

// Pattern returns the http.ServeMux pattern for verb and template,
// e.g. "GET /pet/{id}". Templates ending in a slash match only themselves.
func Pattern(verb, template string) string {
	p := Normalize(template)
	if strings.HasSuffix(p, "/") {
		p += "{$}"
	}
	return verb + " " + p
}
