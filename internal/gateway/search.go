package gateway

import (
	"context"
	"errors"
	"fmt"

	discoveryengine "cloud.google.com/go/discoveryengine/apiv1"
	"cloud.google.com/go/discoveryengine/apiv1/discoveryenginepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	logx "github.com/resilitix/assistant/pkg/logger"
)

const (
	searchPageSize      = 5
	summaryResultCount  = 5
	searchServingConfig = "default_search"
)

// SearchResult is the normalized payload of one knowledge-base search.
// Only the abstractive summary is surfaced; individual matched documents are
// intentionally not exposed to callers.
type SearchResult struct {
	Found   bool   `json:"found"`
	Summary string `json:"summary,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SearchKnowledgeBase searches the fixed document collection and returns the
// summary derived from the top matches. Transport and client failures are
// captured in the Error field, never raised.
func (c *Client) SearchKnowledgeBase(ctx context.Context, query string) *SearchResult {
	logx.Debug().Str("query", truncate(query, 80)).Msg("Searching knowledge base")

	servingConfig := fmt.Sprintf(
		"projects/%s/locations/global/collections/default_collection/dataStores/%s/servingConfigs/%s",
		c.cfg.ProjectID, c.cfg.DataStoreID, searchServingConfig,
	)

	summary, err := c.searchFn(ctx, servingConfig, query)
	if err != nil {
		return &SearchResult{Error: err.Error()}
	}
	if summary == "" {
		return &SearchResult{
			Found:   false,
			Message: "search completed but no summary could be generated",
		}
	}
	return &SearchResult{Found: true, Summary: summary}
}

// searchSummary issues the search through the service's native client and
// extracts the abstractive summary text.
func (c *Client) searchSummary(ctx context.Context, servingConfig, query string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	var opts []option.ClientOption
	if c.cfg.SearchEndpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.SearchEndpoint))
	}
	client, err := discoveryengine.NewSearchClient(callCtx, opts...)
	if err != nil {
		return "", err
	}
	defer client.Close()

	req := &discoveryenginepb.SearchRequest{
		ServingConfig: servingConfig,
		Query:         query,
		PageSize:      searchPageSize,
		ContentSearchSpec: &discoveryenginepb.SearchRequest_ContentSearchSpec{
			SummarySpec: &discoveryenginepb.SearchRequest_ContentSearchSpec_SummarySpec{
				SummaryResultCount: summaryResultCount,
			},
		},
	}

	it := client.Search(callCtx, req)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return "", err
	}

	resp, _ := it.Response.(*discoveryenginepb.SearchResponse)
	return summaryFromResponse(resp), nil
}

// summaryFromResponse pulls the summary text out of the metadata wrapper,
// falling back to the plain summary field.
func summaryFromResponse(resp *discoveryenginepb.SearchResponse) string {
	summary := resp.GetSummary()
	if summary == nil {
		return ""
	}
	if sw := summary.GetSummaryWithMetadata(); sw != nil && sw.GetSummary() != "" {
		return sw.GetSummary()
	}
	return summary.GetSummaryText()
}
