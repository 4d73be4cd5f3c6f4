// Package configstore persists module configuration sections as JSON files.
//
// Per-server sections live in <root>/<ip>_<port>/<Module>/<Section>.json,
// shared sections in <root>/<Module>/<Section>.json.
package configstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"

	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// Store reads and writes sections below a root directory.
type Store struct {
	root string
	log  logr.Logger

	mu sync.Mutex // serializes file access
}

var _ module.SectionStore = (*Store)(nil)

// New returns a store rooted at root.
func New(root string, log logr.Logger) *Store {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Store{root: root, log: log}
}

// Path returns the file backing s.
func (st *Store) Path(s *module.Section) string {
	if s.Shared || s.Server == "" {
		return filepath.Join(st.root, s.Module, s.Name+".json")
	}
	return filepath.Join(st.root, s.Server, s.Module, s.Name+".json")
}

// Load decodes the section file into s.Value. A missing file is created
// from the current value.
func (st *Store) Load(s *module.Section) error {
	path := st.Path(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		st.log.V(1).Info("creating configuration section", "module", s.Module, "section", s.Name, "path", path)
		if err := st.write(path, s.Value); err != nil {
			return errs.NewSectionSaveError(s.Module, s.Name, path, err)
		}
		return nil
	}
	if err != nil {
		return errs.NewSectionLoadError(s.Module, s.Name, path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, s.Value); err != nil {
		return errs.NewSectionLoadError(s.Module, s.Name, path, err)
	}
	return nil
}

// Save encodes s.Value into its file.
func (st *Store) Save(s *module.Section) error {
	path := st.Path(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.write(path, s.Value); err != nil {
		return errs.NewSectionSaveError(s.Module, s.Name, path, err)
	}
	return nil
}

// write replaces path atomically.
func (st *Store) write(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
