package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/argus"
	"github.com/go-logr/logr"

	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/module"
)

// Files below the configuration directory.
const (
	GroupsFile            = "permissions.json"
	PlayerGroupsFile      = "player_groups.json"
	PlayerPermissionsFile = "player_permissions.json"
)

// Options for Open.
type Options struct {
	// Dir holds the three permission files.
	Dir    string
	Logger logr.Logger
	// PollInterval of the file watcher. Defaults to one second.
	PollInterval time.Duration
}

// Store holds the permission rules backed by JSON files and reloads them
// when the files change.
type Store struct {
	dir      string
	log      logr.Logger
	interval time.Duration

	mu      sync.RWMutex
	rules   Rules
	written map[string]uint64 // hash of the content we last wrote per file
}

var _ module.Permissions = (*Store)(nil)

// Open loads the rules from opts.Dir, creating missing files with defaults.
func Open(opts Options) (*Store, error) {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	s := &Store{
		dir:      opts.Dir,
		log:      opts.Logger,
		interval: opts.PollInterval,
		rules:    DefaultRules(),
		written:  map[string]uint64{},
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create permission directory: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files() {
		if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
			if err := s.write(f.path, f.value); err != nil {
				return nil, err
			}
		}
	}
	s.load()
	return s, nil
}

type file struct {
	path  string
	value any // pointer into rules
}

func (s *Store) files() []file {
	return []file{
		{filepath.Join(s.dir, GroupsFile), &s.rules.Groups},
		{filepath.Join(s.dir, PlayerGroupsFile), &s.rules.PlayerGroups},
		{filepath.Join(s.dir, PlayerPermissionsFile), &s.rules.PlayerPermissions},
	}
}

// load reads every file. A file that fails to decode keeps its previous
// rules. The caller holds s.mu.
func (s *Store) load() {
	next := Rules{
		Groups:            s.rules.Groups,
		PlayerGroups:      s.rules.PlayerGroups,
		PlayerPermissions: s.rules.PlayerPermissions,
	}
	targets := []struct {
		name string
		dst  any
	}{
		{GroupsFile, &next.Groups},
		{PlayerGroupsFile, &next.PlayerGroups},
		{PlayerPermissionsFile, &next.PlayerPermissions},
	}
	for _, t := range targets {
		path := filepath.Join(s.dir, t.name)
		if err := readJSON(path, t.dst); err != nil {
			s.log.Error(err, "failed to load permission file, keeping previous rules", "path", path)
		}
	}
	if next.Groups == nil {
		next.Groups = map[string][]string{}
	}
	if next.PlayerGroups == nil {
		next.PlayerGroups = map[uint64][]string{}
	}
	if next.PlayerPermissions == nil {
		next.PlayerPermissions = map[uint64][]string{}
	}
	s.rules = next
	for _, g := range s.rules.UnknownGroups() {
		s.log.Info("players are assigned to a group that does not exist", "group", g)
	}
}

// readJSON decodes path into a fresh value and only replaces dst on success.
func readJSON(path string, dst any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch d := dst.(type) {
	case *map[string][]string:
		var v map[string][]string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v != nil {
			*d = v
		}
	case *map[uint64][]string:
		var v map[uint64][]string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v != nil {
			*d = v
		}
	}
	return nil
}

// write stores v at path and remembers its hash. The caller holds s.mu.
func (s *Store) write(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.written[path] = hashutil.Sum(b)
	return nil
}

// HasPermission reports whether the player is granted perm.
func (s *Store) HasPermission(steamID uint64, perm string) bool {
	return s.Value(steamID, perm).Bool()
}

// Value evaluates perm for the player.
func (s *Store) Value(steamID uint64, perm string) TriState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules.Value(steamID, perm)
}

// Reload rereads the permission files.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
}

// Update changes the rules and saves them.
func (s *Store) Update(fn func(r *Rules)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.rules)
	for _, f := range s.files() {
		if err := s.write(f.path, f.value); err != nil {
			return err
		}
	}
	return nil
}

// Watch reloads the rules whenever a permission file changes, until ctx
// is canceled.
func (s *Store) Watch(ctx context.Context) error {
	w := argus.New(argus.Config{
		PollInterval:    s.interval,
		MaxWatchedFiles: 3,
		ErrorHandler: func(err error, path string) {
			s.log.Error(err, "permission file watcher failed", "path", path)
		},
	})
	for _, f := range s.files() {
		if err := w.Watch(f.path, s.changed); err != nil {
			return fmt.Errorf("watch %s: %w", f.path, err)
		}
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start permission watcher: %w", err)
	}
	<-ctx.Done()
	return w.Stop()
}

func (s *Store) changed(ev argus.ChangeEvent) {
	if ev.IsDelete {
		s.log.Info("permission file was deleted, keeping current rules", "path", ev.Path)
		return
	}
	h, err := hashutil.File(ev.Path)
	if err != nil {
		s.log.Error(err, "failed to read changed permission file", "path", ev.Path)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written[ev.Path] == h {
		return
	}
	s.written[ev.Path] = h
	s.log.V(1).Info("permission file changed, reloading", "path", ev.Path)
	s.load()
}
