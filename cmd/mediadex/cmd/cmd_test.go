package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/export"
	"github.com/Aman-CERP/mediadex/internal/media"
)

const iconsCatalog = `[
  {"path": "outline/bus.svg", "name": "bus", "format": "svg", "style": "outline", "tags": ["transport", "vehicle"]},
  {"path": "solid/bus.svg", "name": "bus", "format": "svg", "style": "solid", "tags": ["transport", "vehicle"]},
  {"path": "outline/user.svg", "name": "user", "format": "svg", "style": "outline", "tags": ["person"]}
]`

const flagsCatalog = `[
  {"path": "de.svg", "name": "flag: Germany", "format": "svg", "tags": ["flag", "de", "germany"]}
]`

const flagsSource = `id: flags
name: Country Flags
type: git
license:
  spdx: MIT
category: flags
`

// project lays out a catalog with two sources and isolates the user config.
func project(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"MEDIADEX_DATA_DIR", "MEDIADEX_INDEX_BACKEND", "MEDIADEX_PREFERRED_STYLES", "MEDIADEX_EXPORT_WORKERS"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "catalog", "icons.json"), iconsCatalog)
	writeFile(t, filepath.Join(dir, "catalog", "flags.json"), flagsCatalog)
	writeFile(t, filepath.Join(dir, "configs", "sources", "flags.yaml"), flagsSource)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// run executes the root command against dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	logFile := filepath.Join(dir, "mediadex.log")
	cmd.SetArgs(append([]string{"--dir", dir, "--log-file", logFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	require.NoError(t, err, "mediadex %s", strings.Join(args, " "))
	return out
}

type jsonResult struct {
	Item  media.Item `json:"item"`
	Score float64    `json:"score"`
}

func TestCLI_IndexSearchExportFlow(t *testing.T) {
	dir := project(t)

	// Given: an indexed catalog
	out := mustRun(t, dir, "index")
	assert.Contains(t, out, "Indexed 4 items from 2 sources")

	// When: searching the live index
	var results []jsonResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "search", "bus", "--json")), &results))

	// Then: both bus variants come back
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "bus", r.Item.Name)
		assert.Equal(t, "icons", r.Item.SourceID)
	}

	// And: grouped search collapses them with the preferred default
	var groups []struct {
		SourceID      string   `json:"source_id"`
		CanonicalName string   `json:"canonical_name"`
		Styles        []string `json:"styles"`
		DefaultStyle  string   `json:"default_style"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "search", "bus", "--grouped", "--prefer", "solid", "--json")), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "bus", groups[0].CanonicalName)
	assert.ElementsMatch(t, []string{"outline", "solid"}, groups[0].Styles)
	assert.Equal(t, "solid", groups[0].DefaultStyle)

	// When: exporting the static index
	out = mustRun(t, dir, "export")
	assert.Contains(t, out, "Exported 4 items from 2 sources")
	static := filepath.Join(dir, ".mediadex", "static")
	assert.FileExists(t, filepath.Join(static, export.SearchDir, "de.json"))
	assert.FileExists(t, filepath.Join(static, "sources.json"))

	// Then: a static search finds the German flag
	var match export.MatchResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "search", "de", "--mode", "static", "--json")), &match))
	require.NotEmpty(t, match.Records)
	assert.Equal(t, "flag: Germany", match.Records[0].Name)
}

func TestCLI_ExportJSONDump(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")
	path := filepath.Join(dir, "static", "index.json")

	// When: dumping the live index grouped
	out := mustRun(t, dir, "export", "--json", path)
	assert.Contains(t, out, "Exported 3 groups")

	// Then: the bus variants share one group
	var grouped struct {
		Groups []struct {
			CanonicalName string `json:"canonical_name"`
			Variants      []struct {
				Style string `json:"style"`
			} `json:"variants"`
		} `json:"groups"`
		Count int `json:"count"`
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &grouped))
	assert.Equal(t, 3, grouped.Count)
	require.Len(t, grouped.Groups, 3)
	assert.Equal(t, "bus", grouped.Groups[1].CanonicalName)
	assert.Len(t, grouped.Groups[1].Variants, 2)

	// And: --flat lists every item
	out = mustRun(t, dir, "export", "--json", path, "--flat")
	assert.Contains(t, out, "Exported 4 items")
	assert.NoFileExists(t, path+".tmp")

	// And: --flat alone is rejected
	_, err = run(t, dir, "export", "--flat")
	assert.Equal(t, mderrors.ErrCodeInvalidInput, mderrors.GetCode(err))
}

func TestCLI_IndexPrunesMissingSources(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	// When: a catalog file disappears and the catalog is reindexed
	require.NoError(t, os.Remove(filepath.Join(dir, "catalog", "flags.json")))
	out := mustRun(t, dir, "index")
	assert.Contains(t, out, "Removed 1 sources")

	// Then: only icons remain
	var sources map[string]int
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "sources", "--json")), &sources))
	assert.Equal(t, map[string]int{"icons": 3}, sources)
}

func TestCLI_IndexSingleSource(t *testing.T) {
	dir := project(t)

	mustRun(t, dir, "index", "--source", "flags")

	var sources map[string]int
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "sources", "--json")), &sources))
	assert.Equal(t, map[string]int{"flags": 1}, sources)
}

func TestCLI_ReindexIsIdempotent(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")
	mustRun(t, dir, "index")

	var stats struct {
		Items  int `json:"items"`
		Groups int `json:"groups"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "stats", "--json")), &stats))
	assert.Equal(t, 4, stats.Items)
	assert.Equal(t, 3, stats.Groups)
}

func TestCLI_Variants(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	var group media.Group
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "variants", "icons", "bus", "--json")), &group))
	assert.Len(t, group.Items, 2)
	assert.Equal(t, "icons:bus", group.GroupKey())

	_, err := run(t, dir, "variants", "icons", "train")
	require.Error(t, err)
	assert.Equal(t, mderrors.ErrCodeInvalidInput, mderrors.GetCode(err))
}

func TestCLI_Styles(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	var styles []string
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "styles", "--json")), &styles))
	assert.Equal(t, []string{"outline", "solid"}, styles)
}

func TestCLI_RemoveAndClear(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	out := mustRun(t, dir, "remove", "flags")
	assert.Contains(t, out, "Removed 1 items of flags")
	out = mustRun(t, dir, "remove", "flags")
	assert.Contains(t, out, "not indexed")

	// Clear needs confirmation
	mustRun(t, dir, "clear")
	var sources map[string]int
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "sources", "--json")), &sources))
	assert.Len(t, sources, 1)

	mustRun(t, dir, "clear", "--yes")
	var cleared map[string]int
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "sources", "--json")), &cleared))
	assert.Empty(t, cleared)
}

func TestCLI_CheckConsistentIndex(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	out := mustRun(t, dir, "check")
	assert.Contains(t, out, "Index consistent (4 items checked)")
}

func TestCLI_SearchValidation(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown mode", []string{"search", "bus", "--mode", "remote"}, mderrors.ErrCodeInvalidInput},
		{"static with tag", []string{"search", "bus", "--mode", "static", "--tag", "x"}, mderrors.ErrCodeInvalidInput},
		{"name with grouped", []string{"search", "bus", "--name", "--grouped"}, mderrors.ErrCodeInvalidInput},
		{"name in static mode", []string{"search", "bus", "--name", "--mode", "static"}, mderrors.ErrCodeInvalidInput},
		{"negative limit", []string{"search", "bus", "--limit", "-1"}, mderrors.ErrCodeInvalidLimit},
		{"limit above max", []string{"search", "bus", "--limit", "5000"}, mderrors.ErrCodeInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, dir, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, mderrors.GetCode(err))
		})
	}
}

func TestCLI_SearchByName(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	// When: searching a name fragment that is not a word prefix
	var items []media.Item
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "search", "SE", "--name", "--json")), &items))

	// Then: "user" is found even though no word starts with "se"
	require.Len(t, items, 1)
	assert.Equal(t, "user", items[0].Name)

	// And: one style narrows the variants of bus
	items = nil
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "search", "us", "--name", "--style", "solid", "--json")), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "solid/bus.svg", items[0].Path)
}

func TestCLI_StaticSearchWithoutExport(t *testing.T) {
	dir := project(t)

	_, err := run(t, dir, "search", "de", "--mode", "static")
	require.Error(t, err)
	assert.Equal(t, mderrors.ErrCodeExportRead, mderrors.GetCode(err))
}

func TestCLI_ConfigShowAndInit(t *testing.T) {
	dir := project(t)

	var cfg struct {
		Index struct {
			Backend string `json:"backend"`
		} `json:"index"`
		Paths struct {
			Catalog string `json:"catalog"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "config", "show", "--json")), &cfg))
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, filepath.Join(dir, "catalog"), cfg.Paths.Catalog)

	out := mustRun(t, dir, "config", "init")
	assert.Contains(t, out, "Created user configuration")
	assert.FileExists(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "mediadex", "config.yaml"))

	out = mustRun(t, dir, "config", "init")
	assert.Contains(t, out, "already exists")
}

func TestCLI_LogsShowsRunEvents(t *testing.T) {
	dir := project(t)
	mustRun(t, dir, "index")

	out := mustRun(t, dir, "logs", "--file", filepath.Join(dir, "mediadex.log"), "--no-color", "--filter", "index_run_completed")
	assert.Contains(t, out, "index_run_completed")
}

func TestVerifyStdinForMCP(t *testing.T) {
	err := verifyStdinForMCP()

	// Test stdin may be a terminal or a pipe depending on the runner.
	if err != nil {
		assert.Contains(t, err.Error(), "stdin")
	}
}

func TestCLI_MemProfileFlag(t *testing.T) {
	dir := project(t)
	path := filepath.Join(dir, "mem.prof")

	mustRun(t, dir, "--memprofile", path, "sources")

	assert.FileExists(t, path)
}
