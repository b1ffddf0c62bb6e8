package media

import (
	"sort"
	"strings"
)

// Kind identifies which kind of source handler produced a metadata record.
type Kind string

const (
	KindUnknown Kind = ""
	KindEmoji   Kind = "emoji"
	KindIcon    Kind = "icon"
	KindStock   Kind = "stock"
)

// Metadata is the typed per-item metadata record.
//
// Known producer fields are explicit; anything else a handler emits goes to
// Extra. Markdown and Aliases are searchable terms in both search modes.
type Metadata struct {
	Kind Kind `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Emoji
	Markdown string   `json:"markdown,omitempty" yaml:"markdown,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Unicode  string   `json:"unicode,omitempty" yaml:"unicode,omitempty"`
	Group    string   `json:"group,omitempty" yaml:"group,omitempty"`
	Subgroup string   `json:"subgroup,omitempty" yaml:"subgroup,omitempty"`

	// Icon
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Stock
	PreviewURL string `json:"preview_url,omitempty" yaml:"preview_url,omitempty"`
	Author     string `json:"author,omitempty" yaml:"author,omitempty"`

	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// IsZero reports whether no field is set.
func (m Metadata) IsZero() bool {
	return m.Kind == "" && m.Markdown == "" && len(m.Aliases) == 0 && m.Unicode == "" &&
		m.Group == "" && m.Subgroup == "" && m.Category == "" && m.PreviewURL == "" &&
		m.Author == "" && len(m.Extra) == 0
}

// Terms returns the lowercased short names: markdown name then aliases.
func (m Metadata) Terms() []string {
	var terms []string
	if m.Markdown != "" {
		terms = append(terms, strings.ToLower(m.Markdown))
	}
	for _, a := range m.Aliases {
		if a != "" {
			terms = append(terms, strings.ToLower(a))
		}
	}
	return terms
}

// SearchText flattens the record into the text indexed by the persistent
// store's metadata column. Extra values are emitted in key order.
func (m Metadata) SearchText() string {
	parts := make([]string, 0, 8+len(m.Extra))
	parts = append(parts, m.Terms()...)
	for _, v := range []string{m.Unicode, m.Group, m.Subgroup, m.Category, m.Author} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(m.Extra) > 0 {
		keys := make([]string, 0, len(m.Extra))
		for k := range m.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := m.Extra[k]; v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, " ")
}
