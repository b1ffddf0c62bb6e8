package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonOnly(name string) bool { return strings.HasSuffix(name, ".json") }

func TestPollingWatcher_DetectsChanges(t *testing.T) {
	// Given: a directory with one existing file
	dir := t.TempDir()
	existing := filepath.Join(dir, "flags.json")
	require.NoError(t, os.WriteFile(existing, []byte("[]"), 0o644))

	p := NewPollingWatcher(20*time.Millisecond, jsonOnly)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	time.Sleep(60 * time.Millisecond)

	// When: a file is created, another modified and one ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icons.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(existing, []byte(`[{"path":"de.svg"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	// Then: create and modify events arrive, the txt file is skipped
	got := map[string]Operation{}
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-p.Events():
			got[ev.Path] = ev.Operation
		case <-deadline:
			t.Fatalf("timeout, got %v", got)
		}
	}
	assert.Equal(t, OpCreate, got["icons.json"])
	assert.Equal(t, OpModify, got["flags.json"])
	assert.NotContains(t, got, "notes.txt")

	// When: a file is deleted
	require.NoError(t, os.Remove(existing))
	select {
	case ev := <-p.Events():
		assert.Equal(t, "flags.json", ev.Path)
		assert.Equal(t, OpDelete, ev.Operation)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delete")
	}
}

func TestPollingWatcher_StopClosesChannels(t *testing.T) {
	p := NewPollingWatcher(time.Hour, nil)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	_, ok := <-p.Events()
	assert.False(t, ok)
	_, ok = <-p.Errors()
	assert.False(t, ok)
}

func TestPollingWatcher_MissingDir(t *testing.T) {
	p := NewPollingWatcher(time.Hour, nil)
	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
