package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock makes each backup one second newer than the last.
func stepClock(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	t.Cleanup(func() { now = time.Now })
}

func TestBackupUserConfig_NoConfig(t *testing.T) {
	isolate(t)

	backupPath, err := BackupUserConfig()

	require.NoError(t, err)
	assert.Empty(t, backupPath)
}

func TestBackupUserConfig_CopiesContent(t *testing.T) {
	xdg := isolate(t)
	stepClock(t)
	content := "index:\n  backend: bleve\n"
	writeUserConfig(t, xdg, content)

	backupPath, err := BackupUserConfig()

	require.NoError(t, err)
	require.NotEmpty(t, backupPath)
	assert.True(t, filepath.IsAbs(backupPath))
	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestBackupUserConfig_KeepsNewest(t *testing.T) {
	xdg := isolate(t)
	stepClock(t)
	writeUserConfig(t, xdg, "version: 1\n")

	var made []string
	for i := 0; i < MaxBackups+2; i++ {
		p, err := BackupUserConfig()
		require.NoError(t, err)
		made = append(made, p)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	// Newest first.
	for i := 0; i < MaxBackups; i++ {
		assert.Equal(t, made[len(made)-1-i], backups[i], fmt.Sprint(i))
	}
}

func TestListUserConfigBackups_NoDir(t *testing.T) {
	isolate(t)

	backups, err := ListUserConfigBackups()

	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestInitUserConfig(t *testing.T) {
	isolate(t)
	stepClock(t)

	// When: no config exists
	path, backup, err := InitUserConfig(false)
	require.NoError(t, err)
	assert.Empty(t, backup)
	assert.FileExists(t, path)

	// Then: a second init without force refuses
	_, _, err = InitUserConfig(false)
	require.Error(t, err)

	// And: force backs up the existing file
	_, backup, err = InitUserConfig(true)
	require.NoError(t, err)
	assert.FileExists(t, backup)

	// And: the written file loads to the defaults
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Export.Workers, cfg.Export.Workers)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
}
