package mcp

import (
	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/search"
	"github.com/Aman-CERP/mediadex/internal/store"
)

// Tool result limits.
const (
	defaultToolLimit = 20
	maxToolLimit     = 200
)

// SearchInput defines the input schema for the search and search_grouped tools.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"free-text query matched against names, tags and descriptions"`
	Source      string   `json:"source,omitempty" jsonschema:"restrict results to one source id"`
	Tags        []string `json:"tags,omitempty" jsonschema:"match items having a tag containing any of these"`
	Formats     []string `json:"formats,omitempty" jsonschema:"file formats to keep, e.g. svg, png"`
	Styles      []string `json:"styles,omitempty" jsonschema:"styles to keep, e.g. outline, solid"`
	Preferences []string `json:"preferences,omitempty" jsonschema:"preferred styles in order, used to pick each group's default style"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
	Offset      int      `json:"offset,omitempty" jsonschema:"number of results to skip"`
}

// ItemOutput is a media item as returned to clients.
type ItemOutput struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Path        string   `json:"path"`
	Name        string   `json:"name"`
	Format      string   `json:"format"`
	MimeType    string   `json:"mime_type"`
	Style       string   `json:"style,omitempty"`
	Tags        []string `json:"tags"`
	License     string   `json:"license,omitempty"`
	Description string   `json:"description,omitempty"`
	Preview     string   `json:"preview,omitempty"`
	Score       float64  `json:"score,omitempty"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query   string       `json:"query"`
	Results []ItemOutput `json:"results"`
}

// GroupOutput is one group of style variants.
type GroupOutput struct {
	Source       string       `json:"source"`
	Name         string       `json:"name"`
	Styles       []string     `json:"styles"`
	DefaultStyle string       `json:"default_style,omitempty"`
	Score        float64      `json:"score,omitempty"`
	Items        []ItemOutput `json:"items"`
}

// SearchGroupedOutput defines the output schema for the search_grouped tool.
type SearchGroupedOutput struct {
	Query  string        `json:"query"`
	Groups []GroupOutput `json:"groups"`
}

// GetVariantsInput defines the input schema for the get_variants tool.
type GetVariantsInput struct {
	Source      string   `json:"source" jsonschema:"source id of the group"`
	Name        string   `json:"name" jsonschema:"canonical name shared by the variants"`
	Preferences []string `json:"preferences,omitempty" jsonschema:"preferred styles in order"`
}

// GetVariantsOutput defines the output schema for the get_variants tool.
// Found is false when no item has the group key.
type GetVariantsOutput struct {
	Found bool         `json:"found"`
	Group *GroupOutput `json:"group,omitempty"`
}

// FindByNameInput defines the input schema for the find_by_name tool.
type FindByNameInput struct {
	Name   string `json:"name" jsonschema:"fragment of the canonical name, matched ignoring case"`
	Source string `json:"source,omitempty" jsonschema:"restrict results to one source id"`
	Style  string `json:"style,omitempty" jsonschema:"restrict results to one style"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// FindByNameOutput defines the output schema for the find_by_name tool.
type FindByNameOutput struct {
	Name    string       `json:"name"`
	Results []ItemOutput `json:"results"`
}

func (in FindByNameInput) limit() int {
	switch {
	case in.Limit <= 0:
		return defaultToolLimit
	case in.Limit > maxToolLimit:
		return maxToolLimit
	}
	return in.Limit
}

// ListSourcesInput defines the input schema for the list_sources tool (no parameters).
type ListSourcesInput struct{}

// SourceOutput is one indexed source.
type SourceOutput struct {
	ID     string   `json:"id"`
	Items  int      `json:"items"`
	Styles []string `json:"styles"`
}

// ListSourcesOutput defines the output schema for the list_sources tool.
type ListSourcesOutput struct {
	Sources []SourceOutput `json:"sources"`
}

// IndexStatsInput defines the input schema for the index_stats tool (no parameters).
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	Items         int            `json:"items"`
	Groups        int            `json:"groups"`
	Sources       map[string]int `json:"sources"`
	Styles        []string       `json:"styles"`
	CachedResults int            `json:"cached_results"`
	Backend       store.Backend  `json:"backend,omitempty"`
}

func (in SearchInput) options() search.SearchOptions {
	limit := in.Limit
	switch {
	case limit <= 0:
		limit = defaultToolLimit
	case limit > maxToolLimit:
		limit = maxToolLimit
	}
	return search.SearchOptions{
		Limit:       limit,
		Offset:      in.Offset,
		SourceID:    in.Source,
		Tags:        in.Tags,
		Formats:     in.Formats,
		Styles:      in.Styles,
		Preferences: in.Preferences,
	}
}

func toItemOutput(it *media.Item, score float64) ItemOutput {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return ItemOutput{
		ID:          it.ID(),
		Source:      it.SourceID,
		Path:        it.Path,
		Name:        it.Name,
		Format:      it.Format,
		MimeType:    MimeTypeForFormat(it.Format),
		Style:       it.Style,
		Tags:        tags,
		License:     it.LicenseID(),
		Description: it.Description,
		Preview:     it.Metadata.PreviewURL,
		Score:       score,
	}
}

func toGroupOutput(g *media.Group, score float64) GroupOutput {
	out := GroupOutput{
		Source:       g.SourceID,
		Name:         g.CanonicalName,
		Styles:       g.Styles,
		DefaultStyle: g.DefaultStyle,
		Score:        score,
		Items:        make([]ItemOutput, 0, len(g.Items)),
	}
	if out.Styles == nil {
		out.Styles = []string{}
	}
	for _, it := range g.Items {
		out.Items = append(out.Items, toItemOutput(it, 0))
	}
	return out
}
