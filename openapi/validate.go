package openapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
)

// Validate checks the document with kin-openapi. The document is loaded as
// Swagger 2.0, converted to OpenAPI 3 and validated there, with every
// reference resolved.
//
// Swagger has no "double" type; for this check it is read as
// number/double, which is what clients generated from the document see.
func (d *Document) Validate(ctx context.Context) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("openapi: encode: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("openapi: decode: %w", err)
	}
	widenDoubles(tree)
	if raw, err = json.Marshal(tree); err != nil {
		return fmt.Errorf("openapi: encode: %w", err)
	}

	var v2 openapi2.T
	if err := json.Unmarshal(raw, &v2); err != nil {
		return fmt.Errorf("openapi: load swagger 2.0: %w", err)
	}
	v3, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return fmt.Errorf("openapi: convert to openapi 3: %w", err)
	}
	if err := openapi3.NewLoader().ResolveRefsIn(v3, nil); err != nil {
		return fmt.Errorf("openapi: resolve refs: %w", err)
	}
	if err := v3.Validate(ctx); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	return nil
}

func widenDoubles(node any) {
	switch n := node.(type) {
	case map[string]any:
		if n["type"] == "double" {
			n["type"] = "number"
			n["format"] = "double"
		}
		for _, v := range n {
			widenDoubles(v)
		}
	case []any:
		for _, v := range n {
			widenDoubles(v)
		}
	}
}
