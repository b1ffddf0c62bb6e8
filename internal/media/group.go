package media

import "sort"

// Group collects every item sharing a group key. Groups are computed at query
// or export time and never stored.
type Group struct {
	SourceID      string   `json:"source_id"`
	CanonicalName string   `json:"canonical_name"`
	Items         []*Item  `json:"items"`
	Styles        []string `json:"styles"`
	DefaultStyle  string   `json:"default_style,omitempty"`
}

// GroupKey returns the key shared by every item of a group.
func GroupKey(sourceID, canonicalName string) string {
	return sourceID + ":" + canonicalName
}

// GroupKey returns "source_id:canonical_name".
func (g *Group) GroupKey() string {
	return GroupKey(g.SourceID, g.CanonicalName)
}

// Item returns the variant with the given style, else the default-style
// variant, else the first item. Nil only for an empty group.
func (g *Group) Item(style string) *Item {
	if len(g.Items) == 0 {
		return nil
	}
	if style != "" {
		for _, it := range g.Items {
			if it.Style == style {
				return it
			}
		}
	}
	if g.DefaultStyle != "" {
		for _, it := range g.Items {
			if it.Style == g.DefaultStyle {
				return it
			}
		}
	}
	return g.Items[0]
}

// DistinctStyles returns the non-empty styles of items in first-seen order.
func DistinctStyles(items []*Item) []string {
	seen := make(map[string]struct{}, len(items))
	styles := make([]string, 0, len(items))
	for _, it := range items {
		if it.Style == "" {
			continue
		}
		if _, ok := seen[it.Style]; ok {
			continue
		}
		seen[it.Style] = struct{}{}
		styles = append(styles, it.Style)
	}
	return styles
}

// ResolveDefaultStyle picks the first preference present in styles. With no
// match it returns the first style; with no styles it returns "".
func ResolveDefaultStyle(styles, preferences []string) string {
	if len(styles) == 0 {
		return ""
	}
	for _, pref := range preferences {
		for _, s := range styles {
			if s == pref {
				return s
			}
		}
	}
	return styles[0]
}

// NewGroup builds a group from items that already share a group key.
// Styles keep first-seen order unless sortStyles is set.
func NewGroup(items []*Item, preferences []string, sortStyles bool) *Group {
	if len(items) == 0 {
		return nil
	}
	styles := DistinctStyles(items)
	if sortStyles {
		sort.Strings(styles)
	}
	return &Group{
		SourceID:      items[0].SourceID,
		CanonicalName: items[0].Canonical(),
		Items:         items,
		Styles:        styles,
		DefaultStyle:  ResolveDefaultStyle(styles, preferences),
	}
}
