package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const releaseCacheTTL = 1 * time.Hour

type releaseCacheEntry struct {
	Release   Release   `json:"release"`
	FetchedAt time.Time `json:"fetched_at"`
}

type releaseCache struct {
	Entries map[string]releaseCacheEntry `json:"entries"`
}

// CachedIndex remembers successful lookups on disk so a retried install
// does not spend another API request.
type CachedIndex struct {
	Next   ReleaseIndex
	Layout Layout
	TTL    time.Duration
	Now    func() time.Time
}

func (c *CachedIndex) Release(ctx context.Context, def ToolDefinition, version string) (Release, error) {
	path := c.Layout.ReleaseCachePath(def.Name)
	now := c.now()

	rc := loadReleaseCache(path)
	if entry, ok := rc.Entries[version]; ok && now.Sub(entry.FetchedAt) <= c.ttl() {
		return entry.Release, nil
	}

	release, err := c.Next.Release(ctx, def, version)
	if err != nil {
		return Release{}, err
	}

	rc = loadReleaseCache(path)
	rc.Entries[version] = releaseCacheEntry{Release: release, FetchedAt: now}
	saveReleaseCache(path, rc)
	return release, nil
}

func (c *CachedIndex) ttl() time.Duration {
	if c.TTL <= 0 {
		return releaseCacheTTL
	}
	return c.TTL
}

func (c *CachedIndex) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func loadReleaseCache(path string) releaseCache {
	data, err := os.ReadFile(path)
	if err != nil {
		return releaseCache{Entries: map[string]releaseCacheEntry{}}
	}
	var rc releaseCache
	if err := json.Unmarshal(data, &rc); err != nil {
		return releaseCache{Entries: map[string]releaseCacheEntry{}}
	}
	if rc.Entries == nil {
		rc.Entries = map[string]releaseCacheEntry{}
	}
	return rc
}

// saveReleaseCache is best effort; a lost write only costs a refetch.
func saveReleaseCache(path string, rc releaseCache) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(dir, ".releases-*.tmp")
	if err != nil {
		return
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
	}
}

var _ ReleaseIndex = (*CachedIndex)(nil)
