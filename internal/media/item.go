// Package media defines the catalog model shared by the persistent index and
// the static exporter: items, style groups, licenses and the typed metadata
// record produced by source handlers.
//
// The grouping key, default-style resolution and searchable-term extraction
// live here so both search modes derive them from one definition.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
)

// Item is one physical asset variant within a source.
type Item struct {
	SourceID string `json:"source_id" yaml:"source_id"`
	Path     string `json:"path" yaml:"path"`
	Name     string `json:"name" yaml:"name"`

	// CanonicalName overrides the grouping name. Empty means Name is used.
	CanonicalName string `json:"canonical_name,omitempty" yaml:"canonical_name,omitempty"`

	Format      string   `json:"format" yaml:"format"`
	Style       string   `json:"style,omitempty" yaml:"style,omitempty"`
	Tags        []string `json:"tags" yaml:"tags"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	License     *License `json:"license,omitempty" yaml:"license,omitempty"`
	Metadata    Metadata `json:"metadata,omitzero" yaml:"metadata,omitempty"`
}

// ID returns the content-derived item identifier: the first 16 hex characters
// of SHA-256("source_id:path").
func (i *Item) ID() string {
	return ItemID(i.SourceID, i.Path)
}

// ItemID computes the identifier for a source and path without an Item.
func ItemID(sourceID, path string) string {
	sum := sha256.Sum256([]byte(sourceID + ":" + path))
	return hex.EncodeToString(sum[:])[:16]
}

// Canonical returns the name used for grouping variants.
func (i *Item) Canonical() string {
	if i.CanonicalName != "" {
		return i.CanonicalName
	}
	return i.Name
}

// GroupKey returns "source_id:canonical_name".
func (i *Item) GroupKey() string {
	return GroupKey(i.SourceID, i.Canonical())
}

// EffectiveLicense returns the per-item license, or the source license when
// the item carries none.
func (i *Item) EffectiveLicense(source *License) *License {
	if i.License != nil {
		return i.License
	}
	return source
}

// LicenseID returns the identifier of the per-item license, or "" if absent.
func (i *Item) LicenseID() string {
	if i.License == nil {
		return ""
	}
	return i.License.Identifier()
}

// Validate checks the fields required to derive an id and a group key.
func (i *Item) Validate() error {
	switch {
	case strings.TrimSpace(i.SourceID) == "":
		return mderrors.New(mderrors.ErrCodeInvalidItem, "item has empty source_id", nil).
			WithDetail("path", i.Path)
	case strings.Contains(i.SourceID, ":"):
		return mderrors.New(mderrors.ErrCodeInvalidItem, "source_id must not contain ':'", nil).
			WithDetail("source_id", i.SourceID)
	case strings.TrimSpace(i.Path) == "":
		return mderrors.New(mderrors.ErrCodeInvalidItem, "item has empty path", nil).
			WithDetail("source_id", i.SourceID)
	case strings.TrimSpace(i.Name) == "":
		return mderrors.New(mderrors.ErrCodeInvalidItem, "item has empty name", nil).
			WithDetail("source_id", i.SourceID).
			WithDetail("path", i.Path)
	}
	return nil
}

// TagString returns the tags joined by single spaces, the form stored in the
// persistent index and matched by tag filters.
func (i *Item) TagString() string {
	return strings.Join(i.Tags, " ")
}
