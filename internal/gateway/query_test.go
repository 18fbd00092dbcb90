package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(ctx context.Context, audience string) (string, error) {
	return "test-token", nil
}

func newTestClient(serverURL string, opts ...Option) *Client {
	cfg := Config{
		QueryToolURL:   serverURL,
		ProjectID:      "proj",
		DataStoreID:    "store",
		SearchEndpoint: "discoveryengine.googleapis.com:443",
		CallTimeout:    5 * time.Second,
	}
	return NewClient(cfg, append([]Option{WithTokenFunc(staticToken)}, opts...)...)
}

func TestRunStructuredQuerySuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"county":"brazos","hospital_count":12}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res := c.RunStructuredQuery(context.Background(), "SELECT 1")

	require.False(t, res.Failed())
	require.Len(t, res.Data, 1)
	assert.Equal(t, "brazos", res.Data[0]["county"])
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestRunStructuredQueryUpstreamErrorKeepsRawBody(t *testing.T) {
	const rawBody = `{"error":"Syntax error: Unexpected keyword SELCT at [1:1]"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, rawBody)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res := c.RunStructuredQuery(context.Background(), "SELCT 1")

	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "HTTP 500 error")
	// The upstream body must survive verbatim so the model can correct itself.
	assert.Contains(t, res.Error, rawBody)
}

func TestRunStructuredQueryMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>gateway timeout</html>")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res := c.RunStructuredQuery(context.Background(), "SELECT 1")

	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "invalid JSON received")
	assert.Contains(t, res.Error, "<html>gateway timeout</html>")
}

func TestRunStructuredQueryTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the endpoint when token minting fails")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithTokenFunc(func(ctx context.Context, audience string) (string, error) {
		return "", fmt.Errorf("metadata server unreachable")
	}))
	res := c.RunStructuredQuery(context.Background(), "SELECT 1")

	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "token generation failed")
	assert.Contains(t, res.Error, "metadata server unreachable")
}

func TestRunStructuredQueryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	cfg := Config{
		QueryToolURL: srv.URL,
		ProjectID:    "proj",
		DataStoreID:  "store",
		CallTimeout:  50 * time.Millisecond,
	}
	c := NewClient(cfg, WithTokenFunc(staticToken))
	res := c.RunStructuredQuery(context.Background(), "SELECT 1")

	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "timeout after 50ms")
	assert.NotContains(t, res.Error, "connection exception")
}

func TestRunStructuredQueryConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := newTestClient(srv.URL)
	res := c.RunStructuredQuery(context.Background(), "SELECT 1")

	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "connection exception")
}

func TestRunStructuredQueryMintsTokenPerCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	var mints int
	c := newTestClient(srv.URL, WithTokenFunc(func(ctx context.Context, audience string) (string, error) {
		mints++
		assert.Equal(t, srv.URL, audience)
		return "tok", nil
	}))

	c.RunStructuredQuery(context.Background(), "SELECT 1")
	c.RunStructuredQuery(context.Background(), "SELECT 2")
	assert.Equal(t, 2, mints)
}
