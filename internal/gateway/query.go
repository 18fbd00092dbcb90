package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	logx "github.com/resilitix/assistant/pkg/logger"
)

// QueryResult is the normalized payload of one structured-query execution.
// Exactly one of Data / Error is meaningful. Error carries the raw upstream
// response text verbatim so the specialist's model can reason about the cause.
type QueryResult struct {
	Data  []map[string]any `json:"data,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Failed reports whether the call produced no usable data.
func (r *QueryResult) Failed() bool {
	return r.Error != ""
}

// RunStructuredQuery executes a query string against the managed
// query-execution endpoint. The caller supplies query text believed valid by
// the upstream dialect; this gateway does no local validation.
func (c *Client) RunStructuredQuery(ctx context.Context, query string) *QueryResult {
	logx.Debug().Str("query", truncate(query, 80)).Msg("Sending query to execution endpoint")

	token, err := c.tokenFn(ctx, c.cfg.QueryToolURL)
	if err != nil {
		return &QueryResult{Error: fmt.Sprintf("token generation failed: %v", err)}
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return &QueryResult{Error: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.QueryToolURL, bytes.NewReader(payload))
	if err != nil {
		return &QueryResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Name timeouts explicitly so the model session can tell a slow query
		// from an unreachable endpoint.
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return &QueryResult{Error: fmt.Sprintf("timeout after %s: %v", c.cfg.CallTimeout, err)}
		}
		return &QueryResult{Error: fmt.Sprintf("connection exception: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &QueryResult{Error: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		// Embed the raw body, not a paraphrase.
		return &QueryResult{Error: fmt.Sprintf("HTTP %d error. Raw response: %s", resp.StatusCode, string(body))}
	}

	var result QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		return &QueryResult{Error: fmt.Sprintf("invalid JSON received. Raw content: %s", string(body))}
	}
	return &result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
