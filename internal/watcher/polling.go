package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by comparing directory snapshots taken
// every interval. It reports top-level files only.
type PollingWatcher struct {
	interval time.Duration
	accepts  func(string) bool

	mu      sync.Mutex
	state   map[string]fileSnapshot
	events  chan FileEvent
	errors  chan error
	stopCh  chan struct{}
	stopped bool
	root    string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher. A nil accept keeps every file.
func NewPollingWatcher(interval time.Duration, accept func(string) bool) *PollingWatcher {
	if accept == nil {
		accept = func(string) bool { return true }
	}
	return &PollingWatcher{
		interval: interval,
		accepts:  accept,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start takes the initial snapshot and polls until ctx is done or Stop is
// called. Files present at start produce no events.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.root = abs

	initial, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.state = initial
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				p.emitError(err)
			}
		}
	}
}

// Stop stops polling and closes the channels. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of raw events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]fileSnapshot, len(entries))
	for _, e := range entries {
		if e.IsDir() || !p.accepts(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snap[e.Name()] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return snap, nil
}

func (p *PollingWatcher) detectChanges() error {
	current, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("scan directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for name, snap := range current {
		prev, ok := p.state[name]
		switch {
		case !ok:
			p.emit(FileEvent{Path: name, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			p.emit(FileEvent{Path: name, Operation: OpModify, Timestamp: now})
		}
	}
	for name := range p.state {
		if _, ok := current[name]; !ok {
			p.emit(FileEvent{Path: name, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// emit sends without blocking; callers hold mu.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
	}
}

func (p *PollingWatcher) emitError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.errors <- err:
	default:
	}
}
