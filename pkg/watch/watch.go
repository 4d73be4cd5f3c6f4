// Package watch polls module source files for changes.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/source"
)

// DefaultInterval between two scans.
const DefaultInterval = time.Second

// Kind of a Change.
type Kind uint8

const (
	Added Kind = iota
	Modified
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change of one module file.
type Change struct {
	Path string
	Kind Kind
}

// Options for New.
type Options struct {
	Dir      string   // directory scanned for module files
	Files    []string // module files outside Dir
	Interval time.Duration
	Logger   logr.Logger
}

type state struct {
	modTime time.Time
	hash    uint64
}

// Watcher detects added, modified and removed module files.
//
// A file counts as modified only when its modification time and its
// content hash both changed, so touching a file does not trigger a reload.
type Watcher struct {
	dir      string
	files    []string
	interval time.Duration
	log      logr.Logger

	mu    sync.Mutex
	known map[string]state
}

// New returns a watcher. Call Prime to record the current files first,
// otherwise the first Scan reports every file as added.
func New(opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Watcher{
		dir:      opts.Dir,
		files:    slices.Clone(opts.Files),
		interval: opts.Interval,
		log:      opts.Logger,
		known:    map[string]state{},
	}
}

// Prime records the current state without reporting changes.
func (w *Watcher) Prime() error {
	_, err := w.Scan()
	return err
}

// Scan compares the files on disk with the last scan.
// Changes are sorted by path.
func (w *Watcher) Scan() ([]Change, error) {
	paths, err := source.Discover(w.dir, w.files)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []Change
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			w.log.Error(err, "failed to stat module file", "path", p)
			continue
		}
		seen[p] = true
		prev, ok := w.known[p]
		if ok && prev.modTime.Equal(info.ModTime()) {
			continue
		}
		h, err := hashutil.File(p)
		if err != nil {
			w.log.Error(err, "failed to read module file", "path", p)
			continue
		}
		w.known[p] = state{modTime: info.ModTime(), hash: h}
		switch {
		case !ok:
			changes = append(changes, Change{Path: p, Kind: Added})
		case prev.hash != h:
			changes = append(changes, Change{Path: p, Kind: Modified})
		}
	}
	for p := range w.known {
		if !seen[p] {
			delete(w.known, p)
			changes = append(changes, Change{Path: p, Kind: Removed})
		}
	}
	slices.SortFunc(changes, func(a, b Change) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return changes, nil
}

// Run scans every interval and calls fn with non-empty change sets
// until ctx is canceled. fn runs on the polling goroutine, so the next
// scan waits for it.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context, []Change)) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		changes, err := w.Scan()
		if err != nil {
			w.log.Error(err, "failed to scan module files", "dir", w.dir)
			continue
		}
		if len(changes) != 0 {
			fn(ctx, changes)
		}
	}
}

// Paths returns the paths of changes.
func Paths(changes []Change) []string {
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	return paths
}
