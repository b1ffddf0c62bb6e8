// Package search answers free-text queries over the persistent media index,
// either as a ranked list of items or as ranked groups of style variants.
package search

import "github.com/Aman-CERP/mediadex/internal/media"

// Result is one ranked item.
type Result struct {
	Item  *media.Item `json:"item"`
	Score float64     `json:"score"`
}

// GroupResult is one ranked group of style variants. Score is the best
// member score.
type GroupResult struct {
	*media.Group
	Score float64 `json:"score"`
}

// EngineStats provides statistics about the index behind the engine.
type EngineStats struct {
	// Sources maps source ID to item count.
	Sources map[string]int `json:"sources"`

	// Items is the total number of items.
	Items int `json:"items"`

	// Groups is the total number of variant groups.
	Groups int `json:"groups"`

	// Styles lists every distinct style, sorted.
	Styles []string `json:"styles"`

	// CachedResults is the number of cached result sets.
	CachedResults int `json:"cached_results"`
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit applies when a request leaves Limit at 0 (default: 50).
	DefaultLimit int

	// MaxLimit is the largest accepted Limit (default: 1000).
	MaxLimit int

	// Preferences is the default style preference order for grouping
	// (default: ["regular", "outline"]).
	Preferences []string

	// CacheSize is the number of result sets kept (default: 256). Negative
	// disables the cache.
	CacheSize int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit: DefaultLimit,
		MaxLimit:     MaxLimit,
		Preferences:  DefaultPreferences(),
		CacheSize:    DefaultCacheSize,
	}
}
