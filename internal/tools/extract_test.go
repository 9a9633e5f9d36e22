package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typstlab/internal/pathguard"
)

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtractFormats(t *testing.T) {
	entries := []archiveEntry{
		{Name: "uv-x86_64-pc-windows-msvc/", Dir: true, Mode: 0o755},
		{Name: "uv-x86_64-pc-windows-msvc/uv", Body: "binary", Mode: 0o755},
		{Name: "uv-x86_64-pc-windows-msvc/uvx", Body: "other", Mode: 0o755},
	}
	archives := map[string][]byte{
		"uv.tar.xz": tarXz(t, entries),
		"uv.tar.gz": tarGz(t, entries),
		"uv.tgz":    tarGz(t, entries),
		"uv.zip":    zipBytes(t, entries[1:]),
	}
	for name, data := range archives {
		t.Run(name, func(t *testing.T) {
			dest := t.TempDir()
			require.NoError(t, extractArchive(writeArchive(t, name, data), name, dest))

			found, err := findExecutable(dest, "uv")
			require.NoError(t, err)
			body, err := os.ReadFile(found)
			require.NoError(t, err)
			assert.Equal(t, "binary", string(body))
		})
	}
}

func TestExtractRejectsUnsafeEntries(t *testing.T) {
	for _, entry := range []string{"../escape", "/etc/passwd", "a/../../b"} {
		t.Run(entry, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "dest")
			data := tarGz(t, []archiveEntry{{Name: entry, Body: "x"}})
			err := extractArchive(writeArchive(t, "bad.tar.gz", data), "bad.tar.gz", dest)
			assert.ErrorIs(t, err, ErrExtraction)
			assert.ErrorIs(t, err, pathguard.ErrPathEscape)
		})
	}
}

func TestExtractZipRejectsUnsafeEntries(t *testing.T) {
	dest := t.TempDir()
	data := zipBytes(t, []archiveEntry{{Name: "../../evil.txt", Body: "x"}})
	err := extractArchive(writeArchive(t, "bad.zip", data), "bad.zip", dest)
	assert.ErrorIs(t, err, ErrExtraction)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(dest)), "evil.txt"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	err := extractArchive(writeArchive(t, "x.rar", []byte("rar")), "x.rar", t.TempDir())
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestFindExecutableRequiresExactlyOne(t *testing.T) {
	dir := t.TempDir()
	_, err := findExecutable(dir, "typst")
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "typst"), nil, 0o755))
	found, err := findExecutable(dir, "typst")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "typst"), found)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "typst"), nil, 0o755))
	_, err = findExecutable(dir, "typst")
	assert.ErrorContains(t, err, "2 files named typst")
}
