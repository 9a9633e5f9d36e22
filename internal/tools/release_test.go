package tools

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubIndexRelease(t *testing.T) {
	rs := newReleaseServer(t)
	publishTypst(t, rs, "0.13.1", "typst 0.13.1")

	idx := rs.index()
	idx.Token = "ghp_test"
	release, err := idx.Release(context.Background(), typstDef(t), "0.13.1")
	require.NoError(t, err)
	assert.Equal(t, "v0.13.1", release.Tag)
	assert.Len(t, release.Assets, 5)
	assert.Equal(t, "Bearer ghp_test", rs.lastAuth.Load())
	assert.Equal(t, "typstlab", rs.lastAgent.Load())
}

func TestGitHubIndexAnonymous(t *testing.T) {
	rs := newReleaseServer(t)
	publishTypst(t, rs, "0.13.1", "typst 0.13.1")

	_, err := rs.index().Release(context.Background(), typstDef(t), "0.13.1")
	require.NoError(t, err)
	assert.Equal(t, "", rs.lastAuth.Load())
}

func TestGitHubIndexMissingTag(t *testing.T) {
	rs := newReleaseServer(t)
	_, err := rs.index().Release(context.Background(), typstDef(t), "0.99.0")
	var meta *MetadataError
	require.ErrorAs(t, err, &meta)
	assert.True(t, meta.NotFound)
	assert.Contains(t, meta.URL, "/repos/typst/typst/releases/tags/v0.99.0")
	assert.Contains(t, err.Error(), "no typst release for version 0.99.0")
}

func TestGitHubIndexRateLimited(t *testing.T) {
	rs := newReleaseServer(t)
	rs.mu.Lock()
	rs.status = 403
	rs.mu.Unlock()

	_, err := rs.index().Release(context.Background(), typstDef(t), "0.13.1")
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "unexpected status 403")
}

type countingIndex struct {
	calls int
	err   error
}

func (c *countingIndex) Release(_ context.Context, def ToolDefinition, version string) (Release, error) {
	c.calls++
	if c.err != nil {
		return Release{}, c.err
	}
	return Release{Tag: def.Tag(version), Assets: []Asset{{Name: "typst-x86_64-unknown-linux-musl.tar.xz", Size: 42}}}, nil
}

func TestCachedIndexReusesFreshEntries(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	next := &countingIndex{}
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	idx := &CachedIndex{Next: next, Layout: layout, Now: func() time.Time { return now }}
	def := typstDef(t)

	first, err := idx.Release(context.Background(), def, "0.13.1")
	require.NoError(t, err)
	assert.FileExists(t, layout.ReleaseCachePath("typst"))

	now = now.Add(30 * time.Minute)
	second, err := idx.Release(context.Background(), def, "0.13.1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)

	_, err = idx.Release(context.Background(), def, "0.12.0")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "entries are per version")

	now = now.Add(2 * time.Hour)
	_, err = idx.Release(context.Background(), def, "0.13.1")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls, "stale entries are refetched")
}

func TestCachedIndexDoesNotCacheFailures(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	next := &countingIndex{err: errors.New("offline")}
	idx := &CachedIndex{Next: next, Layout: layout}

	_, err := idx.Release(context.Background(), typstDef(t), "0.13.1")
	require.Error(t, err)
	_, statErr := os.Stat(layout.ReleaseCachePath("typst"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	next.err = nil
	_, err = idx.Release(context.Background(), typstDef(t), "0.13.1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedIndexSurvivesCorruptFile(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(layout.ToolDir("typst"), 0o755))
	require.NoError(t, os.WriteFile(layout.ReleaseCachePath("typst"), []byte("{not json"), 0o644))

	next := &countingIndex{}
	idx := &CachedIndex{Next: next, Layout: layout}
	release, err := idx.Release(context.Background(), typstDef(t), "0.13.1")
	require.NoError(t, err)
	assert.Equal(t, "v0.13.1", release.Tag)
	assert.Equal(t, 1, next.calls)
}
