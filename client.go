package routerpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/broady/routerpc/bind"
	"github.com/broady/routerpc/ir"
	"github.com/broady/routerpc/reflection"
)

// TransportError reports a call that never produced an HTTP response:
// connection failures, timeouts and cancellations.
type TransportError struct {
	Verb string
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("routerpc: %s %s: %v", e.Verb, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call failed because a deadline expired.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Client invokes methods of a remote App over HTTP.
// A Client is safe for concurrent use; all calls share one connection pool.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	codec       Codec
	header      http.Header
	timeout     time.Duration
	compression bool

	bindings  sync.Map // *endpoint -> *clientBinding
	closeOnce sync.Once
}

// clientBinding is the per-endpoint wire layout, computed on first use.
type clientBinding struct {
	msg  *ir.Message
	locs bind.Assignment
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithCodec sets the payload codec. It must match the server's.
func WithCodec(codec Codec) ClientOption {
	return func(c *Client) { c.codec = codec }
}

// WithTimeout bounds every call. Zero means no limit beyond the caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithCompression requests gzip-compressed responses and decompresses them.
func WithCompression() ClientOption {
	return func(c *Client) { c.compression = true }
}

// WithHeader adds a header sent with every call.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.header.Add(key, value) }
}

// NewClient returns a client for the app served at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("routerpc: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("routerpc: base URL %q must be absolute", baseURL)
	}
	c := &Client{
		base:   base,
		codec:  JSONCodec{},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if c.compression {
		hc := *c.httpClient
		parent := hc.Transport
		if parent == nil {
			parent = http.DefaultTransport
		}
		hc.Transport = gzhttp.Transport(parent)
		c.httpClient = &hc
	}
	return c, nil
}

// Close releases idle connections. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(c.httpClient.CloseIdleConnections)
	return nil
}

// Call invokes ep on the remote app.
//
// PATH fields are substituted into the route, non-zero QUERY fields go in
// the query string and, for POST, PUT and PATCH, the request is sent as the
// body. A response outside 200-399 is returned as *Error; a call that gets
// no response returns *TransportError.
func Call[S, Req, Res any](ctx context.Context, c *Client, ep *Endpoint[S, Req, Res], req *Req) (*Res, error) {
	if req == nil {
		req = new(Req)
	}
	res := new(Res)
	if err := c.do(ctx, &ep.e, req, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) binding(e *endpoint) (*clientBinding, error) {
	if b, ok := c.bindings.Load(e); ok {
		return b.(*clientBinding), nil
	}
	msg, err := reflection.MessageOf(e.reqType)
	if err != nil {
		return nil, err
	}
	locs, err := reflection.Locations(e.verb, e.route, msg)
	if err != nil {
		return nil, err
	}
	b, _ := c.bindings.LoadOrStore(e, &clientBinding{msg: msg, locs: locs})
	return b.(*clientBinding), nil
}

func (c *Client) do(ctx context.Context, e *endpoint, req, res any) error {
	b, err := c.binding(e)
	if err != nil {
		return err
	}
	target, err := c.url(b, e, req)
	if err != nil {
		return err
	}

	var body io.Reader
	if bind.HasBody(e.verb) {
		data, err := c.codec.Encode(req)
		if err != nil {
			return fmt.Errorf("routerpc: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, e.verb, target, body)
	if err != nil {
		return fmt.Errorf("routerpc: build request: %w", err)
	}
	for k, vs := range c.header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	httpReq.Header.Set("Accept", c.codec.MediaType())
	if body != nil {
		httpReq.Header.Set("Content-Type", c.codec.MediaType())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Verb: e.verb, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Verb: e.verb, URL: target, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return c.codec.Decode(data, res)
	}
	return c.remoteError(resp.StatusCode, data)
}

// url expands the route with PATH values and appends QUERY values.
func (c *Client) url(b *clientBinding, e *endpoint, req any) (string, error) {
	v := reflect.ValueOf(req)
	pathValues := make(map[string]string, len(b.locs.Path))
	for _, name := range b.locs.Path {
		f, _ := b.msg.Field(name)
		vals, err := encodeField(f, v)
		if err != nil {
			return "", err
		}
		if len(vals) == 0 {
			return "", fmt.Errorf("routerpc: path field %s is nil", name)
		}
		pathValues[name] = vals[0]
	}
	path, err := bind.Expand(e.route, pathValues)
	if err != nil {
		return "", err
	}

	u := *c.base
	u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + path
	if u.Path, err = url.PathUnescape(u.RawPath); err != nil {
		return "", err
	}

	if !bind.HasBody(e.verb) {
		query := make(url.Values)
		for _, name := range b.locs.Query {
			f, _ := b.msg.Field(name)
			if f.Get(v).IsZero() {
				continue
			}
			vals, err := encodeField(f, v)
			if err != nil {
				return "", err
			}
			if len(vals) > 0 {
				query[name] = vals
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// encodeField form-encodes a single top-level field of req. The value is
// copied into a one-field struct first, so fields of nested messages never
// add values under the same key. It is the inverse of decodeField.
func encodeField(f *ir.Field, req reflect.Value) ([]string, error) {
	v := f.Get(req)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	holder := reflect.New(reflect.StructOf([]reflect.StructField{{
		Name: "V",
		Type: v.Type(),
		Tag:  reflect.StructTag(`json:"` + f.Name + `"`),
	}}))
	holder.Elem().Field(0).Set(v)
	encoded := make(map[string][]string, 1)
	if err := schemaEncoder.Encode(holder.Interface(), encoded); err != nil {
		return nil, fmt.Errorf("routerpc: encode field %s: %w", f.Name, err)
	}
	return encoded[f.Name], nil
}

// remoteError decodes an error envelope. Responses without one still
// become *Error, carrying the HTTP status.
func (c *Client) remoteError(status int, data []byte) error {
	var env Error
	if err := c.codec.Decode(data, &env); err != nil || env.Code == "" {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &Error{Status: status, Code: CodeForStatus(status), Message: msg}
	}
	env.Status = status
	return &env
}
