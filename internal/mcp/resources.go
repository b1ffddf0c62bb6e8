package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	SourcesURI       = "mediadex://sources"
	QueryInsightsURI = "mediadex://query_insights"
)

// QueryInsightsOutput is the JSON structure of the query_insights resource.
type QueryInsightsOutput struct {
	TotalQueries        int64            `json:"total_queries"`
	ZeroResultPct       float64          `json:"zero_result_pct"`
	KindCounts          map[string]int64 `json:"kind_counts"`
	TopTerms            []QueryTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerResources registers the sources resource, and query_insights
// when insights are set.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "sources",
		URI:         SourcesURI,
		Description: "Indexed media sources with item counts and styles",
		MIMEType:    "application/json",
	}, s.readSources)

	if s.insights != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "query_insights",
			URI:         QueryInsightsURI,
			Description: "Query pattern telemetry for this session",
			MIMEType:    "application/json",
		}, s.readQueryInsights)
	}
}

func (s *Server) readSources(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	out, err := s.listSources(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(SourcesURI, out)
}

func (s *Server) readQueryInsights(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(QueryInsightsURI, s.queryInsights())
}

func (s *Server) queryInsights() QueryInsightsOutput {
	snap := s.insights.Snapshot()
	out := QueryInsightsOutput{
		TotalQueries:        snap.TotalQueries,
		ZeroResultPct:       snap.ZeroResultPercentage(),
		KindCounts:          make(map[string]int64, len(snap.KindCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   snap.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for kind, n := range snap.KindCounts {
		out.KindCounts[string(kind)] = n
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = n
	}
	return out
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "application/json", Text: string(content)}},
	}, nil
}
