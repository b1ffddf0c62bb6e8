package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a blocked cross-process lock is retried.
const lockRetryDelay = 50 * time.Millisecond

// SourceLocker serializes writers per source ID. Within a process a
// one-slot channel per source orders goroutines; across processes an flock
// file per source does. Both waits end when the context is done. Writers to
// different sources never wait on each other.
type SourceLocker struct {
	dir string // "" disables file locks

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewSourceLocker creates a locker whose lock files live in dir. An empty
// dir gives in-process locking only, for in-memory stores.
func NewSourceLocker(dir string) *SourceLocker {
	return &SourceLocker{
		dir:   dir,
		locks: make(map[string]chan struct{}),
	}
}

// Dir returns the lock file directory, or "" when file locks are disabled.
func (l *SourceLocker) Dir() string {
	return l.dir
}

func (l *SourceLocker) slot(sourceID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[sourceID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[sourceID] = ch
	}
	return ch
}

// LockPath returns the lock file for a source.
func (l *SourceLocker) LockPath(sourceID string) string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, lockFileName(sourceID))
}

// lockFileName maps a source ID to a safe file name. IDs that needed
// rewriting get a hash suffix so "a/b" and "a_b" never share a lock file.
func lockFileName(sourceID string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, sourceID)
	if safe != sourceID {
		sum := sha256.Sum256([]byte(sourceID))
		safe += "-" + hex.EncodeToString(sum[:4])
	}
	return safe + ".lock"
}

// Lock acquires the write lock for every given source in sorted order and
// returns a function releasing them. Duplicate IDs are locked once.
func (l *SourceLocker) Lock(ctx context.Context, sourceIDs ...string) (func(), error) {
	ids := uniqueSorted(sourceIDs)
	var releases []func()
	unlockAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, id := range ids {
		release, err := l.lockOne(ctx, id)
		if err != nil {
			unlockAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return unlockAll, nil
}

func (l *SourceLocker) lockOne(ctx context.Context, sourceID string) (func(), error) {
	ch := l.slot(sourceID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire lock for source %q: %w", sourceID, ctx.Err())
	}
	unlock := func() { <-ch }

	if l.dir == "" {
		return unlock, nil
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(l.LockPath(sourceID))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		unlock()
		if err == nil {
			err = fmt.Errorf("lock for source %q not acquired", sourceID)
		}
		return nil, fmt.Errorf("failed to acquire lock for source %q: %w", sourceID, err)
	}

	return func() {
		_ = fl.Unlock()
		unlock()
	}, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
