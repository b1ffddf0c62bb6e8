package media

// License describes usage terms for an item or a whole source.
type License struct {
	SPDX                string `json:"spdx,omitempty" yaml:"spdx,omitempty"`
	Name                string `json:"name,omitempty" yaml:"name,omitempty"`
	AttributionRequired bool   `json:"attribution_required,omitempty" yaml:"attribution_required,omitempty"`
	AttributionNotice   string `json:"attribution_notice,omitempty" yaml:"attribution_notice,omitempty"`
	CommercialOK        bool   `json:"commercial_ok" yaml:"commercial_ok"`
	ModificationOK      bool   `json:"modification_ok" yaml:"modification_ok"`
	ShareAlike          bool   `json:"share_alike,omitempty" yaml:"share_alike,omitempty"`
	Notes               string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Identifier returns the SPDX id, falling back to the display name.
func (l *License) Identifier() string {
	if l == nil {
		return ""
	}
	if l.SPDX != "" {
		return l.SPDX
	}
	if l.Name != "" {
		return l.Name
	}
	return "Unknown"
}

// RequiresAttribution reports whether using the asset needs a credit line.
func (l *License) RequiresAttribution() bool {
	return l != nil && (l.AttributionRequired || l.ShareAlike)
}
