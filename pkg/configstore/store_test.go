package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

type settings struct {
	Message string `json:"message"`
	Limit   int    `json:"limit"`
}

func TestStore_CreatesMissingSectionFromDefaults(t *testing.T) {
	root := t.TempDir()
	st := New(root, logr.Discard())
	val := &settings{Message: "hello", Limit: 3}
	sec := &module.Section{Module: "Greeter", Name: "Settings", Server: "10.0.0.1_30000", Value: val}

	require.NoError(t, st.Load(sec))
	path := filepath.Join(root, "10.0.0.1_30000", "Greeter", "Settings.json")
	assert.Equal(t, path, st.Path(sec))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello","limit":3}`, string(b))
}

func TestStore_LoadAndSave(t *testing.T) {
	root := t.TempDir()
	st := New(root, logr.Discard())
	sec := &module.Section{Module: "Greeter", Name: "Words", Shared: true, Server: "ignored", Value: &settings{}}
	path := filepath.Join(root, "Greeter", "Words.json")
	require.Equal(t, path, st.Path(sec))

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"message":"from disk","limit":9}`), 0o644))
	require.NoError(t, st.Load(sec))
	assert.Equal(t, &settings{Message: "from disk", Limit: 9}, sec.Value)

	sec.Value.(*settings).Limit = 10
	require.NoError(t, st.Save(sec))
	fresh := &module.Section{Module: "Greeter", Name: "Words", Shared: true, Value: &settings{}}
	require.NoError(t, st.Load(fresh))
	assert.Equal(t, 10, fresh.Value.(*settings).Limit)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_InvalidJSON(t *testing.T) {
	root := t.TempDir()
	st := New(root, logr.Discard())
	sec := &module.Section{Module: "M", Name: "S", Value: &settings{}}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "M"), 0o755))
	require.NoError(t, os.WriteFile(st.Path(sec), []byte("{nope"), 0o644))

	err := st.Load(sec)
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.ErrCodeSectionLoad))
}
