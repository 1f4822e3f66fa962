package shortener

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Trimd {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewTrimd(WithEndpoint(srv.URL+"/api/url/add"), WithHTTPClient(srv.Client()))
}

func TestShortenSuccess(t *testing.T) {
	var gotBody map[string]string
	tr := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/url/add", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(b, &gotBody))
		_, _ = io.WriteString(w, `{"error":0,"id":7,"shorturl":"https://trimd.cc/x1"}`)
	})

	short, err := tr.Shorten(context.Background(), "http://example.com/test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "https://trimd.cc/x1", short)
	assert.Equal(t, map[string]string{"url": "http://example.com/test"}, gotBody)
}

func TestShortenZeroErrorForms(t *testing.T) {
	for _, code := range []string{`"0"`, `0.0`, `false`, `" 0 "`} {
		t.Run(code, func(t *testing.T) {
			tr := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"error":`+code+`,"shorturl":"https://trimd.cc/s"}`)
			})

			short, err := tr.Shorten(context.Background(), "https://a.example", "k")
			require.NoError(t, err)
			assert.Equal(t, "https://trimd.cc/s", short)
		})
	}
}

func TestShortenNonZeroErrorForms(t *testing.T) {
	for _, code := range []string{`true`, `2.0`, `0.5`, `"3"`} {
		t.Run(code, func(t *testing.T) {
			tr := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"error":`+code+`,"message":"nope","shorturl":"https://trimd.cc/s"}`)
			})

			_, err := tr.Shorten(context.Background(), "https://a.example", "k")
			var ae *APIError
			require.ErrorAs(t, err, &ae)
			assert.NotZero(t, ae.Code)
		})
	}
}

func TestShortenFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx",
			status: http.StatusUnauthorized,
			body:   `{"error":1,"message":"bad key"}`,
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "",
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "empty body", pe.Reason)
			},
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   "<html>oops</html>",
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
				assert.Contains(t, pe.Reason, "decode json")
			},
		},
		{
			name:   "json array",
			status: http.StatusOK,
			body:   `["https://trimd.cc/x"]`,
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
			},
		},
		{
			name:   "missing error field",
			status: http.StatusOK,
			body:   `{"shorturl":"https://trimd.cc/x"}`,
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "missing error field", pe.Reason)
			},
		},
		{
			name:   "missing shorturl",
			status: http.StatusOK,
			body:   `{"error":0}`,
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "missing shorturl", pe.Reason)
			},
		},
		{
			name:   "odd error field",
			status: http.StatusOK,
			body:   `{"error":{"x":1},"shorturl":"https://trimd.cc/x"}`,
			check: func(t *testing.T, err error) {
				var pe *ProtocolError
				require.ErrorAs(t, err, &pe)
			},
		},
		{
			name:   "application error",
			status: http.StatusOK,
			body:   `{"error":1,"message":"Please enter a valid URL."}`,
			check: func(t *testing.T, err error) {
				var ae *APIError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, 1, ae.Code)
				assert.Equal(t, "Please enter a valid URL.", ae.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			short, err := tr.Shorten(context.Background(), "https://a.example", "k")
			require.Error(t, err)
			assert.Empty(t, short)
			assert.True(t, errors.Is(err, ErrShorten))
			tt.check(t, err)
		})
	}
}

func TestShortenTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	tr := NewTrimd(WithEndpoint(endpoint))
	_, err := tr.Shorten(context.Background(), "https://a.example", "k")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Is(err, ErrShorten))
}

func TestShortenHonorsContext(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	tr := newServer(t, func(http.ResponseWriter, *http.Request) {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Shorten(ctx, "https://a.example", "k")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIErrorMessageDefault(t *testing.T) {
	assert.Equal(t, "trimd api error 2: unknown error", (&APIError{Code: 2}).Error())
}
