// Package gateway wraps the two managed external capabilities behind
// normalized request/response payloads: the hosted query-execution endpoint
// and the managed document-search service.
//
// Failure semantics: neither operation returns a Go error to its caller.
// Every failure mode (auth, non-2xx, malformed body, transport exception) is
// folded into the result payload verbatim, so the calling specialist can hand
// it back to its model session for self-correction.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/resilitix/assistant/internal/agent/model"
	"google.golang.org/api/idtoken"
)

// Config carries the endpoint identifiers for both managed services.
type Config struct {
	// QueryToolURL is the query-execution endpoint; it is also the token
	// audience for per-call identity tokens.
	QueryToolURL string
	// ProjectID / DataStoreID identify the fixed search collection.
	ProjectID   string
	DataStoreID string
	// SearchEndpoint is the regional API endpoint for the search service.
	SearchEndpoint string
	// CallTimeout bounds each outbound call. Timeouts surface as transport
	// failures in the result payload rather than hanging on transport defaults.
	CallTimeout time.Duration
}

// FromModel converts the env-sourced config into gateway config.
func FromModel(cfg model.GatewayConfig) (Config, error) {
	timeout, err := time.ParseDuration(cfg.CallTimeout)
	if err != nil {
		return Config{}, err
	}
	return Config{
		QueryToolURL:   cfg.QueryToolURL,
		ProjectID:      cfg.ProjectID,
		DataStoreID:    cfg.DataStoreID,
		SearchEndpoint: cfg.SearchEndpoint,
		CallTimeout:    timeout,
	}, nil
}

// Client is the external tool gateway. It holds no per-call state; identity
// tokens are minted fresh on every query call and search clients are opened
// per call, mirroring the upstream services' own session model.
type Client struct {
	cfg        Config
	httpClient *http.Client

	// injection points for tests
	tokenFn  func(ctx context.Context, audience string) (string, error)
	searchFn func(ctx context.Context, servingConfig, query string) (string, error)
}

// Option customizes a gateway client.
type Option func(*Client)

// WithTokenFunc replaces the identity-token minter.
func WithTokenFunc(fn func(ctx context.Context, audience string) (string, error)) Option {
	return func(c *Client) { c.tokenFn = fn }
}

// WithSearchFunc replaces the document-search backend.
func WithSearchFunc(fn func(ctx context.Context, servingConfig, query string) (string, error)) Option {
	return func(c *Client) { c.searchFn = fn }
}

// NewClient builds a gateway client for the configured endpoints.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
		tokenFn:    identityToken,
	}
	c.searchFn = c.searchSummary
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// identityToken mints a short-lived identity token scoped to the endpoint URL.
// Tokens are deliberately not cached; every call re-authenticates.
func identityToken(ctx context.Context, audience string) (string, error) {
	ts, err := idtoken.NewTokenSource(ctx, audience)
	if err != nil {
		return "", err
	}
	tok, err := ts.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
