package tools

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
}

func versionScript(output string) string {
	return fmt.Sprintf("#!/bin/sh\necho %q\n", output)
}

// writeFakeBinary creates an executable script printing output.
func writeFakeBinary(t *testing.T, path, output string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(versionScript(output)), 0o755))
	return path
}

type archiveEntry struct {
	Name string
	Body string
	Mode int64
	Dir  bool
}

func tarBytes(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: e.Mode, Size: int64(len(e.Body)), Typeflag: tar.TypeReg}
		if e.Dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.Dir {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func tarXz(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(tarBytes(t, entries))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func tarGz(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(tarBytes(t, entries))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		mode := os.FileMode(e.Mode)
		if mode == 0 {
			mode = 0o644
		}
		hdr.SetMode(mode)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.Body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// typstArchive is a release archive laid out like the upstream tarballs.
func typstArchive(t *testing.T, target, reports string) []byte {
	dir := "typst-" + target
	return tarXz(t, []archiveEntry{
		{Name: dir + "/", Dir: true, Mode: 0o755},
		{Name: dir + "/LICENSE", Body: "Apache-2.0\n"},
		{Name: dir + "/README.md", Body: "# typst\n"},
		{Name: dir + "/typst", Body: versionScript(reports), Mode: 0o755},
	})
}

// releaseServer is a stand-in for the GitHub releases API and its download
// host.
type releaseServer struct {
	*httptest.Server

	mu        sync.Mutex
	releases  map[string][]Asset
	payloads  map[string][]byte
	status    int
	gate      chan struct{}
	metaCalls atomic.Int32
	downloads atomic.Int32
	lastAuth  atomic.Value
	lastAgent atomic.Value
}

func newReleaseServer(t *testing.T) *releaseServer {
	t.Helper()
	rs := &releaseServer{releases: map[string][]Asset{}, payloads: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/", func(w http.ResponseWriter, r *http.Request) {
		rs.metaCalls.Add(1)
		rs.lastAuth.Store(r.Header.Get("Authorization"))
		rs.lastAgent.Store(r.Header.Get("User-Agent"))
		rs.mu.Lock()
		status := rs.status
		assets, ok := rs.releases[r.URL.Path]
		rs.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		tag := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Release{Tag: tag, Assets: assets})
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		rs.downloads.Add(1)
		rs.mu.Lock()
		body, ok := rs.payloads[r.URL.Path]
		gate := rs.gate
		rs.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		_, _ = w.Write(body)
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

// addRelease publishes assets for def at version. A nil payload advertises
// the asset without serving it.
func (rs *releaseServer) addRelease(def ToolDefinition, version string, assets map[string][]byte) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var list []Asset
	for name, body := range assets {
		path := "/download/" + def.Tag(version) + "/" + name
		list = append(list, Asset{Name: name, URL: rs.URL + path, Size: int64(len(body))})
		if body != nil {
			rs.payloads[path] = body
		}
	}
	rs.releases["/repos/"+def.Repo+"/releases/tags/"+def.Tag(version)] = list
}

func (rs *releaseServer) setAssetSize(def ToolDefinition, version, name string, size int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	key := "/repos/" + def.Repo + "/releases/tags/" + def.Tag(version)
	for i := range rs.releases[key] {
		if rs.releases[key][i].Name == name {
			rs.releases[key][i].Size = size
		}
	}
}

// holdDownloads parks download requests until the returned func is called.
func (rs *releaseServer) holdDownloads(t *testing.T) func() {
	t.Helper()
	gate := make(chan struct{})
	rs.mu.Lock()
	rs.gate = gate
	rs.mu.Unlock()
	release := sync.OnceFunc(func() { close(gate) })
	t.Cleanup(release)
	return release
}

func (rs *releaseServer) index() *GitHubIndex {
	return &GitHubIndex{BaseURL: rs.URL, Client: rs.Client()}
}

// countingRunner counts spawned processes.
type countingRunner struct {
	calls atomic.Int32
	next  Runner
}

func (c *countingRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	c.calls.Add(1)
	if c.next == nil {
		return CmdRunner{}.Run(ctx, command, args, opts)
	}
	return c.next.Run(ctx, command, args, opts)
}

func noLookPath(name string) (string, error) {
	return "", fmt.Errorf("%s: executable file not found in $PATH", name)
}

func lookPathMap(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return noLookPath(name)
	}
}

func testInstaller(cacheRoot string, rs *releaseServer) *Installer {
	in := &Installer{
		CacheRoot: cacheRoot,
		LookPath:  noLookPath,
		Logger:    zerolog.Nop(),
		GOOS:      "linux",
		GOARCH:    "amd64",
	}
	if rs != nil {
		in.Index = rs.index()
		in.HTTPClient = rs.Client()
	}
	return in
}

const linuxTarget = "x86_64-unknown-linux"

// publishTypst serves a plausible typst release where only the linux amd64
// archive is downloadable.
func publishTypst(t *testing.T, rs *releaseServer, version, reports string) {
	t.Helper()
	def, _ := Definition("typst")
	rs.addRelease(def, version, map[string][]byte{
		"typst-x86_64-unknown-linux-musl.tar.xz":        typstArchive(t, "x86_64-unknown-linux-musl", reports),
		"typst-aarch64-unknown-linux-musl.tar.xz":       nil,
		"typst-aarch64-apple-darwin.tar.xz":             nil,
		"typst-x86_64-pc-windows-msvc.zip":              nil,
		"typst-x86_64-unknown-linux-musl.tar.xz.sha256": []byte("deadbeef"),
	})
}
