// Package openapi generates Swagger 2.0 documents from a reflect graph and
// serves them through a reflection service.
package openapi

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Document is a Swagger 2.0 API description.
//
// The document types are themselves messages: the reflection service
// returns a Document, so these types are walked like any other response.
type Document struct {
	Swagger     string                           `json:"swagger" yaml:"swagger"`
	Info        Info                             `json:"info" yaml:"info"`
	Schemes     []string                         `json:"schemes" yaml:"schemes"`
	Consumes    []string                         `json:"consumes" yaml:"consumes"`
	Produces    []string                         `json:"produces" yaml:"produces"`
	Paths       map[string]map[string]*Operation `json:"paths" yaml:"paths"`
	Definitions map[string]*Schema               `json:"definitions" yaml:"definitions"`
}

// Info is the document metadata.
type Info struct {
	Version string `json:"version" yaml:"version"`
	Title   string `json:"title" yaml:"title"`
}

// Operation describes one method under a path and verb.
type Operation struct {
	Tags       []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Produces   []string     `json:"produces" yaml:"produces"`
	Responses  Responses    `json:"responses" yaml:"responses"`
	Parameters []*Parameter `json:"parameters" yaml:"parameters"`
}

// Responses holds the default response of an operation.
type Responses struct {
	Default *Response `json:"default" yaml:"default"`
}

// Response is a response description with its body schema.
type Response struct {
	Description string  `json:"description" yaml:"description"`
	Schema      *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Parameter describes one request parameter.
// Body parameters carry Schema; path and query parameters carry Type.
type Parameter struct {
	In               string  `json:"in" yaml:"in"`
	Name             string  `json:"name" yaml:"name"`
	Description      string  `json:"description,omitempty" yaml:"description,omitempty"`
	Required         bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Type             string  `json:"type,omitempty" yaml:"type,omitempty"`
	Items            *Schema `json:"items,omitempty" yaml:"items,omitempty"`
	CollectionFormat string  `json:"collectionFormat,omitempty" yaml:"collectionFormat,omitempty"`
	Schema           *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Schema is a structural type descriptor. The zero Schema encodes as {}
// and places no constraint on the value.
type Schema struct {
	Ref                  string             `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Type                 string             `json:"type,omitempty" yaml:"type,omitempty"`
	Format               string             `json:"format,omitempty" yaml:"format,omitempty"`
	Description          string             `json:"description,omitempty" yaml:"description,omitempty"`
	Items                *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required             []string           `json:"required,omitempty" yaml:"required,omitempty"`
}

// JSON returns the indented JSON encoding of the document.
func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// YAML returns the YAML encoding of the document.
func (d *Document) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}
