package mcp

import (
	"fmt"
	"strings"
)

// FormatSearchResults formats item results as markdown.
func FormatSearchResults(out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No media found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Media Results for \"%s\"\n\n", out.Query)
	writeCount(&sb, len(out.Results), "result")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, r.Name, r.Score)
		writeItem(&sb, r)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatNameResults formats find_by_name results as markdown.
func FormatNameResults(out FindByNameOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No media named like \"%s\"", out.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Media Named Like \"%s\"\n\n", out.Name)
	writeCount(&sb, len(out.Results), "result")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. %s\n", i+1, r.Name)
		writeItem(&sb, r)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatGroupResults formats grouped results as markdown, one section per
// group with its styles and default style.
func FormatGroupResults(out SearchGroupedOutput) string {
	if len(out.Groups) == 0 {
		return fmt.Sprintf("No media found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Grouped Media Results for \"%s\"\n\n", out.Query)
	writeCount(&sb, len(out.Groups), "group")

	for i, g := range out.Groups {
		fmt.Fprintf(&sb, "### %d. %s:%s (score: %.2f)\n", i+1, g.Source, g.Name, g.Score)
		writeGroup(&sb, g)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatVariants formats the get_variants output as markdown.
func FormatVariants(source, name string, out GetVariantsOutput) string {
	if !out.Found {
		return fmt.Sprintf("No variants found for %s:%s", source, name)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Variants of %s:%s\n\n", out.Group.Source, out.Group.Name)
	writeGroup(&sb, *out.Group)
	return sb.String()
}

// FormatSources formats the list_sources output as markdown.
func FormatSources(out ListSourcesOutput) string {
	if len(out.Sources) == 0 {
		return "No sources indexed. Run 'mediadex index' first."
	}
	var sb strings.Builder
	sb.WriteString("## Indexed Sources\n\n")
	sb.WriteString("| Source | Items | Styles |\n|---|---|---|\n")
	for _, s := range out.Sources {
		fmt.Fprintf(&sb, "| %s | %d | %s |\n", s.ID, s.Items, strings.Join(s.Styles, ", "))
	}
	return sb.String()
}

func writeCount(sb *strings.Builder, n int, noun string) {
	fmt.Fprintf(sb, "Found %d %s", n, noun)
	if n != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
}

func writeGroup(sb *strings.Builder, g GroupOutput) {
	if len(g.Styles) > 0 {
		fmt.Fprintf(sb, "**Styles:** %s\n", strings.Join(g.Styles, ", "))
	}
	if g.DefaultStyle != "" {
		fmt.Fprintf(sb, "**Default style:** `%s`\n", g.DefaultStyle)
	}
	for _, it := range g.Items {
		label := it.Style
		if label == "" {
			label = it.Name
		}
		fmt.Fprintf(sb, "- `%s` %s (%s, id `%s`)\n", label, it.Path, it.MimeType, it.ID)
	}
}

func writeItem(sb *strings.Builder, r ItemOutput) {
	fmt.Fprintf(sb, "**Source:** %s  **Path:** `%s`  **Format:** %s\n", r.Source, r.Path, r.MimeType)
	if r.Style != "" {
		fmt.Fprintf(sb, "**Style:** %s\n", r.Style)
	}
	if len(r.Tags) > 0 {
		tags := make([]string, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = fmt.Sprintf("`%s`", t)
		}
		fmt.Fprintf(sb, "**Tags:** %s\n", strings.Join(tags, " "))
	}
	if r.License != "" {
		fmt.Fprintf(sb, "**License:** %s\n", r.License)
	}
	if r.Description != "" {
		fmt.Fprintf(sb, "> %s\n", r.Description)
	}
	fmt.Fprintf(sb, "*ID:* `%s`\n", r.ID)
}
