package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineIsLengthPrefixed(t *testing.T) {
	assert.NotEqual(t, Combine([]byte("ab"), []byte("c")), Combine([]byte("a"), []byte("bc")))
	assert.Equal(t, Combine([]byte("a"), []byte("b")), Combine([]byte("a"), []byte("b")))
}

func TestFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.go")
	require.NoError(t, os.WriteFile(p, []byte("package main"), 0o644))
	h, err := File(p)
	require.NoError(t, err)
	assert.Equal(t, Sum([]byte("package main")), h)

	_, err = File(filepath.Join(t.TempDir(), "missing.go"))
	require.Error(t, err)
}

func TestJsonHash(t *testing.T) {
	a, err := JsonHash(map[string]int{"a": 1})
	require.NoError(t, err)
	b, err := JsonHash(map[string]int{"a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
