package routerpc

import (
	"encoding/json"
	"fmt"

	"github.com/broady/routerpc/ir"
)

// Empty is the sentinel "no content" message. Use it as the request or
// response type of methods that carry no data. It encodes as {} and never
// appears in generated definitions.
//
// Example:
//
//	func (s *PetService) DeletePet(ctx context.Context, req *PetID) (*routerpc.Empty, error) {
//	    // ... delete pet
//	    return &routerpc.Empty{}, nil
//	}
type Empty = ir.Empty

// Codec is the byte-level encoding of request and response messages.
// It is keyed by media type.
type Codec interface {
	// MediaType is the Content-Type of encoded payloads.
	MediaType() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// DecodeError reports a payload the codec could not decode.
// The server maps it to invalid_argument.
type DecodeError struct {
	MediaType string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.MediaType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// JSONCodec encodes messages with encoding/json.
type JSONCodec struct{}

func (JSONCodec) MediaType() string { return "application/json" }

func (JSONCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (c JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{MediaType: c.MediaType(), Err: err}
	}
	return nil
}
