package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/search"
	"github.com/Aman-CERP/mediadex/internal/store"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
	"github.com/Aman-CERP/mediadex/pkg/version"
)

// SearchEngine is the part of the query engine the server exposes.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.Result, error)
	SearchGrouped(ctx context.Context, query string, opts search.SearchOptions) ([]*search.GroupResult, error)
	SearchByName(ctx context.Context, name, sourceID, style string, limit int) ([]*media.Item, error)
	GetVariants(ctx context.Context, sourceID, canonicalName string, preferences []string) (*media.Group, error)
	ListSources(ctx context.Context) ([]string, error)
	ListStyles(ctx context.Context, sourceID string) ([]string, error)
	Stats(ctx context.Context) (*search.EngineStats, error)
}

// Server is the MCP server for mediadex. It answers tool calls from AI
// clients with the query engine.
type Server struct {
	mcp      *mcp.Server
	engine   SearchEngine
	logger   *slog.Logger
	insights *telemetry.QueryInsights
	backend  store.Backend
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInsights exposes query insights as the query_insights resource.
func WithInsights(q *telemetry.QueryInsights) Option {
	return func(s *Server) { s.insights = q }
}

// WithBackend names the index backend reported by index_stats.
func WithBackend(b store.Backend) Option {
	return func(s *Server) { s.backend = b }
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Find media items (icons, emoji, flags, images) by name, tag or description. Filter by source, tags, formats and styles. Returns ranked items with their id, path, format and license.",
	},
	{
		Name:        "search_grouped",
		Description: "Like search, but collapses style variants of the same item (outline, solid, ...) into one group and picks a default style from the preferred styles.",
	},
	{
		Name:        "get_variants",
		Description: "List every style variant of one item, identified by its source and canonical name.",
	},
	{
		Name:        "list_sources",
		Description: "List indexed media sources with their item counts and styles.",
	},
	{
		Name:        "index_stats",
		Description: "Report index totals: items, variant groups, per-source counts and styles.",
	},
	{
		Name:        "find_by_name",
		Description: "Find media items whose canonical name contains a fragment, ignoring case. Optionally restrict to one source or style. Results are ordered by source, name and style.",
	},
}

// NewServer creates a new MCP server over engine.
func NewServer(engine SearchEngine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	s := &Server{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: version.Name, Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return version.Name, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name. Search, name, variant and source tools
// return markdown; index_stats returns *IndexStatsOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(out), nil
	case "search_grouped":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.searchGrouped(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatGroupResults(out), nil
	case "get_variants":
		var in GetVariantsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.getVariants(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatVariants(in.Source, in.Name, out), nil
	case "list_sources":
		out, err := s.listSources(ctx)
		if err != nil {
			return nil, err
		}
		return FormatSources(out), nil
	case "index_stats":
		return s.indexStats(ctx)
	case "find_by_name":
		var in FindByNameInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.findByName(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatNameResults(out), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	done := s.begin("search", in.Query)

	results, err := s.engine.Search(ctx, in.Query, in.options())
	if err != nil {
		done(0, err)
		return SearchOutput{}, MapError(err)
	}
	out := SearchOutput{Query: in.Query, Results: make([]ItemOutput, 0, len(results))}
	for _, r := range results {
		if r != nil && r.Item != nil {
			out.Results = append(out.Results, toItemOutput(r.Item, r.Score))
		}
	}
	done(len(out.Results), nil)
	return out, nil
}

func (s *Server) searchGrouped(ctx context.Context, in SearchInput) (SearchGroupedOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchGroupedOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	done := s.begin("search_grouped", in.Query)

	groups, err := s.engine.SearchGrouped(ctx, in.Query, in.options())
	if err != nil {
		done(0, err)
		return SearchGroupedOutput{}, MapError(err)
	}
	out := SearchGroupedOutput{Query: in.Query, Groups: make([]GroupOutput, 0, len(groups))}
	for _, g := range groups {
		if g != nil && g.Group != nil {
			out.Groups = append(out.Groups, toGroupOutput(g.Group, g.Score))
		}
	}
	done(len(out.Groups), nil)
	return out, nil
}

func (s *Server) findByName(ctx context.Context, in FindByNameInput) (FindByNameOutput, error) {
	if strings.TrimSpace(in.Name) == "" {
		return FindByNameOutput{}, NewInvalidParamsError("name parameter is required and must be a non-empty string")
	}
	done := s.begin("find_by_name", in.Name)

	items, err := s.engine.SearchByName(ctx, in.Name, in.Source, in.Style, in.limit())
	if err != nil {
		done(0, err)
		return FindByNameOutput{}, MapError(err)
	}
	out := FindByNameOutput{Name: in.Name, Results: make([]ItemOutput, 0, len(items))}
	for _, it := range items {
		out.Results = append(out.Results, toItemOutput(it, 0))
	}
	done(len(out.Results), nil)
	return out, nil
}

func (s *Server) getVariants(ctx context.Context, in GetVariantsInput) (GetVariantsOutput, error) {
	if strings.TrimSpace(in.Source) == "" || strings.TrimSpace(in.Name) == "" {
		return GetVariantsOutput{}, NewInvalidParamsError("source and name parameters are required")
	}
	done := s.begin("get_variants", media.GroupKey(in.Source, in.Name))

	group, err := s.engine.GetVariants(ctx, in.Source, in.Name, in.Preferences)
	if err != nil {
		done(0, err)
		return GetVariantsOutput{}, MapError(err)
	}
	if group == nil {
		done(0, nil)
		return GetVariantsOutput{}, nil
	}
	g := toGroupOutput(group, 0)
	done(len(g.Items), nil)
	return GetVariantsOutput{Found: true, Group: &g}, nil
}

func (s *Server) listSources(ctx context.Context) (ListSourcesOutput, error) {
	done := s.begin("list_sources", "")

	stats, err := s.engine.Stats(ctx)
	if err != nil {
		done(0, err)
		return ListSourcesOutput{}, MapError(err)
	}
	ids, err := s.engine.ListSources(ctx)
	if err != nil {
		done(0, err)
		return ListSourcesOutput{}, MapError(err)
	}
	out := ListSourcesOutput{Sources: make([]SourceOutput, 0, len(ids))}
	for _, id := range ids {
		styles, err := s.engine.ListStyles(ctx, id)
		if err != nil {
			done(0, err)
			return ListSourcesOutput{}, MapError(err)
		}
		if styles == nil {
			styles = []string{}
		}
		out.Sources = append(out.Sources, SourceOutput{ID: id, Items: stats.Sources[id], Styles: styles})
	}
	done(len(out.Sources), nil)
	return out, nil
}

func (s *Server) indexStats(ctx context.Context) (*IndexStatsOutput, error) {
	done := s.begin("index_stats", "")

	stats, err := s.engine.Stats(ctx)
	if err != nil {
		done(0, err)
		return nil, MapError(err)
	}
	out := &IndexStatsOutput{
		Items:         stats.Items,
		Groups:        stats.Groups,
		Sources:       stats.Sources,
		Styles:        stats.Styles,
		CachedResults: stats.CachedResults,
		Backend:       s.backend,
	}
	if out.Sources == nil {
		out.Sources = map[string]int{}
	}
	if out.Styles == nil {
		out.Styles = []string{}
	}
	done(out.Items, nil)
	return out, nil
}

// begin logs the start of a tool call and returns the matching completion
// logger.
func (s *Server) begin(tool, query string) func(results int, err error) {
	start := time.Now()
	requestID := generateRequestID()
	s.logger.Debug("tool_call_started",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.String("query", query))

	return func(results int, err error) {
		d := time.Since(start)
		if err != nil {
			s.logger.Error("tool_call_failed",
				slog.String("request_id", requestID),
				slog.String("tool", tool),
				slog.Duration("duration", d),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Info("tool_call_completed",
			slog.String("request_id", requestID),
			slog.String("tool", tool),
			slog.Duration("duration", d),
			slog.Int("result_count", results))
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpSearchGroupedHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpGetVariantsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpListSourcesHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[4].Name, Description: tools[4].Description}, s.mcpIndexStatsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[5].Name, Description: tools[5].Description}, s.mcpFindByNameHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out, err := s.search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(FormatSearchResults(out)), out, nil
}

func (s *Server) mcpSearchGroupedHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchGroupedOutput, error) {
	out, err := s.searchGrouped(ctx, in)
	if err != nil {
		return nil, SearchGroupedOutput{}, err
	}
	return textResult(FormatGroupResults(out)), out, nil
}

func (s *Server) mcpGetVariantsHandler(ctx context.Context, _ *mcp.CallToolRequest, in GetVariantsInput) (*mcp.CallToolResult, GetVariantsOutput, error) {
	out, err := s.getVariants(ctx, in)
	if err != nil {
		return nil, GetVariantsOutput{}, err
	}
	return textResult(FormatVariants(in.Source, in.Name, out)), out, nil
}

func (s *Server) mcpListSourcesHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListSourcesInput) (*mcp.CallToolResult, ListSourcesOutput, error) {
	out, err := s.listSources(ctx)
	if err != nil {
		return nil, ListSourcesOutput{}, err
	}
	return textResult(FormatSources(out)), out, nil
}

func (s *Server) mcpFindByNameHandler(ctx context.Context, _ *mcp.CallToolRequest, in FindByNameInput) (*mcp.CallToolResult, FindByNameOutput, error) {
	out, err := s.findByName(ctx, in)
	if err != nil {
		return nil, FindByNameOutput{}, err
	}
	return textResult(FormatNameResults(out)), out, nil
}

func (s *Server) mcpIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (*mcp.CallToolResult, *IndexStatsOutput, error) {
	out, err := s.indexStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on transport until ctx is canceled. Only "stdio" is
// supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
