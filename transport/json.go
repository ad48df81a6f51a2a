package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrUnauthorized is matched by an [HTTPError] with status 401.
var ErrUnauthorized = errors.New("unauthorized")

const maxErrorBody = 64 << 10

// HTTPError is a non-2xx response decoded by [JSONClient].
type HTTPError struct {
	StatusCode int
	// Message is the server-provided message or error field, when present.
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Is reports ErrUnauthorized for 401 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// RequestOption adjusts a single [JSONClient] request.
type RequestOption func(*http.Request)

// WithBearer sets an explicit bearer token. An empty token is ignored.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithQuery appends q to the request URL.
func WithQuery(q url.Values) RequestOption {
	return func(r *http.Request) {
		if len(q) == 0 {
			return
		}
		r.URL.RawQuery = q.Encode()
	}
}

// WithHeader sets a single request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// JSONClient sends JSON requests relative to a base URL and decodes JSON
// responses. Non-2xx responses become *HTTPError.
type JSONClient struct {
	client  *http.Client
	baseURL string
	headers http.Header
}

// NewJSONClient wraps client. Every request carries headers in addition to
// the JSON content headers.
func NewJSONClient(client *http.Client, baseURL string, headers map[string]string) *JSONClient {
	if client == nil {
		client = http.DefaultClient
	}
	h := make(http.Header, len(headers)+2)
	h.Set("Accept", "application/json")
	for k, v := range headers {
		h.Set(k, v)
	}
	return &JSONClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: h,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *JSONClient) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying client.
func (c *JSONClient) HTTPClient() *http.Client {
	return c.client
}

// Get issues a GET and decodes the response into out.
func (c *JSONClient) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues a POST with in as the JSON body.
func (c *JSONClient) Post(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

// Put issues a PUT with in as the JSON body.
func (c *JSONClient) Put(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, in, out, opts...)
}

// Patch issues a PATCH with in as the JSON body.
func (c *JSONClient) Patch(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, in, out, opts...)
}

// Delete issues a DELETE and decodes the response into out.
func (c *JSONClient) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends one request. A nil in sends no body; a nil out discards the
// response body. An empty 2xx body leaves out untouched.
func (c *JSONClient) Do(ctx context.Context, method, path string, in, out any, opts ...RequestOption) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return err
	}
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeHTTPError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *JSONClient) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func decodeHTTPError(resp *http.Response) *HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	he := &HTTPError{StatusCode: resp.StatusCode, Body: raw}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		he.Message = payload.Message
		if he.Message == "" {
			he.Message = payload.Error
		}
	}
	return he
}
