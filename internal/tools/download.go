package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// progressWriter forwards byte counts to a Reporter.
type progressWriter struct {
	report  func(done, total int64)
	total   int64
	written int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.report != nil {
		p.report(p.written, p.total)
	}
	return len(b), nil
}

// downloadAsset streams asset into a temp file under dir and returns its
// path. The caller removes the file.
func downloadAsset(ctx context.Context, client *http.Client, asset Asset, dir string, report func(done, total int64)) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("prepare download dir: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return "", &DownloadError{URL: asset.URL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &DownloadError{URL: asset.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	tmpFile, err := os.CreateTemp(dir, "download-*"+archiveFormat(asset.Name))
	if err != nil {
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmpFile.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	total := asset.Size
	if total <= 0 {
		total = resp.ContentLength
	}
	counter := &progressWriter{report: report, total: total}
	n, err := io.Copy(io.MultiWriter(tmpFile, counter), resp.Body)
	if err != nil {
		tmpFile.Close()
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := tmpFile.Close(); err != nil {
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("close temp file: %w", err)}
	}
	if asset.Size > 0 && n != asset.Size {
		return "", &DownloadError{URL: asset.URL, Err: fmt.Errorf("size mismatch: got %d bytes, expected %d", n, asset.Size)}
	}

	ok = true
	return tmpPath, nil
}
