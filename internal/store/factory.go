package store

import (
	"fmt"
	"os"
	"path/filepath"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
)

// Backend names a persistent index implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default). WAL mode allows readers in
	// other processes while one process writes.
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2. Its BoltDB file lock admits one process.
	BackendBleve Backend = "bleve"
)

// indexBaseName is the file stem of the index inside the index directory.
const indexBaseName = "media"

// Open creates an ItemStore for backend inside dir. An empty dir opens an
// in-memory store.
//
// backend options:
//   - "sqlite" (default): <dir>/media.db
//   - "bleve": <dir>/media.bleve
func Open(dir string, backend Backend, opts Options) (ItemStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteItemStore(IndexPath(dir, backend), opts)
	case BackendBleve:
		return NewBleveItemStore(IndexPath(dir, backend), opts)
	default:
		return nil, mderrors.ConfigError(
			fmt.Sprintf("unknown index backend: %s (valid options: sqlite, bleve)", backend), nil)
	}
}

// IndexPath returns the index file or directory for backend inside dir,
// or "" when dir is empty.
func IndexPath(dir string, backend Backend) string {
	if dir == "" {
		return ""
	}
	base := filepath.Join(dir, indexBaseName)
	switch backend {
	case BackendBleve:
		return base + ".bleve"
	default:
		return base + ".db"
	}
}

// DetectBackend reports which backend an existing index in dir uses, or ""
// when there is none.
func DetectBackend(dir string) Backend {
	if fileExists(IndexPath(dir, BackendSQLite)) {
		return BackendSQLite
	}
	if dirExists(IndexPath(dir, BackendBleve)) {
		return BackendBleve
	}
	return ""
}

// ValidBackend reports whether name selects a known backend.
func ValidBackend(name string) bool {
	switch Backend(name) {
	case BackendSQLite, BackendBleve, "":
		return true
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
