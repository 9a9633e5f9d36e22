package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteShim(t *testing.T) {
	project := t.TempDir()
	def := typstDef(t)

	path, written, err := WriteShim(project, def, false)
	require.NoError(t, err)
	assert.True(t, written)
	assert.True(t, strings.HasSuffix(path, ShimPath(def)))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "typstlab typst exec --")
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}

	require.NoError(t, os.WriteFile(path, []byte("custom"), 0o755))
	_, written, err = WriteShim(project, def, false)
	require.NoError(t, err)
	assert.False(t, written, "existing shim is kept without force")
	body, _ = os.ReadFile(path)
	assert.Equal(t, "custom", string(body))

	_, written, err = WriteShim(project, def, true)
	require.NoError(t, err)
	assert.True(t, written)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestWriteShimRequiresShimArgs(t *testing.T) {
	uv, _ := Definition("uv")
	_, _, err := WriteShim(t.TempDir(), uv, false)
	assert.Error(t, err)
}

func TestShimScript(t *testing.T) {
	def := typstDef(t)
	assert.Equal(t, "#!/bin/sh\nexec typstlab typst exec -- \"$@\"\n", shimScript(def, "linux"))
	assert.Equal(t, "@echo off\r\ntypstlab typst exec -- %*\r\n", shimScript(def, "windows"))
}
