// Package shortener talks to the Trimd URL shortening API.
package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DefaultEndpoint = "https://trimd.cc/api/url/add"

// Bodies larger than this are treated as malformed.
const maxResponseBytes = 1 << 20

// ErrShorten is matched by every error returned from Trimd.Shorten.
var ErrShorten = errors.New("shorten failed")

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "trimd transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Is(target error) bool {
	return target == ErrShorten
}

// ProtocolError covers non-2xx statuses and bodies without the expected shape.
type ProtocolError struct {
	StatusCode int
	Reason     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("trimd protocol: status %d: %s", e.StatusCode, e.Reason)
}
func (e *ProtocolError) Is(target error) bool { return target == ErrShorten }

// APIError is a well-formed error response from Trimd, e.g. a rejected URL.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("trimd api error %d: %s", e.Code, msg)
}
func (e *APIError) Is(target error) bool { return target == ErrShorten }

type Trimd struct {
	endpoint string
	client   *http.Client
}

type Option func(*Trimd)

// WithHTTPClient replaces the default client. The client is shared by every
// call, so its transport pools connections to the API.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Trimd) {
		if c != nil {
			t.client = c
		}
	}
}

func WithEndpoint(endpoint string) Option {
	return func(t *Trimd) {
		if endpoint != "" {
			t.endpoint = endpoint
		}
	}
}

func NewTrimd(opts ...Option) *Trimd {
	t := &Trimd{
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type addRequest struct {
	URL string `json:"url"`
}

type addResponse struct {
	Error    *json.RawMessage `json:"error"`
	ShortURL *string          `json:"shorturl"`
	Message  string           `json:"message"`
}

// Shorten posts longURL to the API using apiKey as the bearer token.
func (t *Trimd) Shorten(ctx context.Context, longURL, apiKey string) (string, error) {
	body, err := json.Marshal(addRequest{URL: longURL})
	if err != nil {
		return "", errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", &TransportError{Err: errors.Wrap(err, "read response")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ProtocolError{StatusCode: resp.StatusCode, Reason: snippet(raw)}
	}
	if len(raw) > maxResponseBytes {
		return "", &ProtocolError{StatusCode: resp.StatusCode, Reason: "response too large"}
	}

	var out addResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &ProtocolError{StatusCode: resp.StatusCode, Reason: "decode json: " + err.Error()}
	}
	if out.Error == nil {
		return "", &ProtocolError{StatusCode: resp.StatusCode, Reason: "missing error field"}
	}
	code, ok := errorCode(*out.Error)
	if !ok {
		return "", &ProtocolError{StatusCode: resp.StatusCode, Reason: "unexpected error field " + string(*out.Error)}
	}
	if code != 0 {
		return "", &APIError{Code: code, Message: out.Message}
	}
	if out.ShortURL == nil || strings.TrimSpace(*out.ShortURL) == "" {
		return "", &ProtocolError{StatusCode: resp.StatusCode, Reason: "missing shorturl"}
	}
	return strings.TrimSpace(*out.ShortURL), nil
}

// errorCode reads the API's error indicator. Any value equal to zero means
// success: 0, 0.0, false, or a numeric string.
func errorCode(raw json.RawMessage) (int, bool) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case json.Number:
		return numberCode(x.String())
	case string:
		return numberCode(strings.TrimSpace(x))
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func numberCode(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f == 0 {
		return 0, true
	}
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt32 {
		return int(f), true
	}
	// fractional codes are still failures
	return 1, true
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
