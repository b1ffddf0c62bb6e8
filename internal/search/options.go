package search

import (
	"fmt"
	"sort"
	"strings"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/store"
)

const (
	// DefaultLimit is used when a request leaves Limit at 0.
	DefaultLimit = 50

	// MaxLimit is the largest Limit a request may ask for.
	MaxLimit = 1000

	// OverfetchFactor widens the item search behind grouped queries so groups
	// whose variants rank unevenly are still complete.
	OverfetchFactor = 10

	// DefaultCacheSize is the number of result sets the engine caches.
	DefaultCacheSize = 256
)

// DefaultPreferences returns the default style preference order.
func DefaultPreferences() []string {
	return []string{"regular", "outline"}
}

// SearchOptions configures a search query. All filters are optional and
// AND-combined with the text match.
type SearchOptions struct {
	// Limit is the maximum number of results (0 = engine default).
	Limit int `json:"limit,omitempty"`

	// Offset skips results after ranking.
	Offset int `json:"offset,omitempty"`

	// SourceID restricts results to one source. Unknown sources match
	// nothing.
	SourceID string `json:"source_id,omitempty"`

	// Tags matches items where any entry is a case-insensitive substring of
	// the item's tags.
	Tags []string `json:"tags,omitempty"`

	// Formats and Styles are exact set membership.
	Formats []string `json:"formats,omitempty"`
	Styles  []string `json:"styles,omitempty"`

	// Preferences orders styles when resolving a group's default style.
	// Nil uses the engine's preferences.
	Preferences []string `json:"preferences,omitempty"`
}

// Validate rejects negative pagination values and limits above MaxLimit.
func (o SearchOptions) Validate() error {
	return o.validate(MaxLimit)
}

func (o SearchOptions) validate(maxLimit int) error {
	switch {
	case o.Limit < 0:
		return mderrors.InvalidLimit(fmt.Sprintf("limit must not be negative, got %d", o.Limit)).
			WithSuggestion("omit limit to use the default")
	case o.Offset < 0:
		return mderrors.InvalidLimit(fmt.Sprintf("offset must not be negative, got %d", o.Offset))
	case o.Limit > maxLimit:
		return mderrors.InvalidLimit(fmt.Sprintf("limit %d exceeds maximum %d", o.Limit, maxLimit))
	}
	return nil
}

// filter converts the options to a store filter, dropping blank entries.
func (o SearchOptions) filter() store.Filter {
	return store.Filter{
		SourceID: strings.TrimSpace(o.SourceID),
		Tags:     nonBlank(o.Tags),
		Formats:  nonBlank(o.Formats),
		Styles:   nonBlank(o.Styles),
	}
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// cacheKey identifies a request for the result cache. Filter sets are
// order-insensitive; preferences are order-sensitive.
func cacheKey(kind string, terms []string, o SearchOptions, generation uint64) string {
	f := o.filter()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%d|%d|%d|", kind, generation, o.Limit, o.Offset)
	sb.WriteString(strings.Join(terms, " "))
	sb.WriteString("|src=")
	sb.WriteString(f.SourceID)
	for _, part := range []struct {
		name   string
		values []string
	}{
		{"tags", lowerSorted(f.Tags)},
		{"formats", sorted(f.Formats)},
		{"styles", sorted(f.Styles)},
	} {
		sb.WriteString("|" + part.name + "=")
		sb.WriteString(strings.Join(part.values, "\x1f"))
	}
	if kind == kindGroups {
		sb.WriteString("|prefs=")
		sb.WriteString(strings.Join(o.Preferences, "\x1f"))
	}
	return sb.String()
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func lowerSorted(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	sort.Strings(out)
	return out
}
