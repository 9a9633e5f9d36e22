package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

const userAgent = "typstlab"

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
	Size int64  `json:"size"`
}

// Release is the metadata for one tagged version.
type Release struct {
	Tag    string  `json:"tag_name"`
	Assets []Asset `json:"assets"`
}

// ReleaseIndex looks up release metadata for an exact tool version.
type ReleaseIndex interface {
	Release(ctx context.Context, def ToolDefinition, version string) (Release, error)
}

// GitHubIndex queries /repos/{owner}/{repo}/releases/tags/{tag}.
type GitHubIndex struct {
	BaseURL string
	Client  *http.Client
	// Token is sent as a bearer token when set, raising the API rate limit.
	Token string
}

// NewGitHubIndex returns an index against the public API, authenticated with
// GITHUB_TOKEN when present.
func NewGitHubIndex() *GitHubIndex {
	return &GitHubIndex{
		BaseURL: DefaultGitHubAPI,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Token:   os.Getenv("GITHUB_TOKEN"),
	}
}

func (g *GitHubIndex) Release(ctx context.Context, def ToolDefinition, version string) (Release, error) {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = DefaultGitHubAPI
	}
	endpoint := fmt.Sprintf("%s/repos/%s/releases/tags/%s", base, def.Repo, url.PathEscape(def.Tag(version)))
	metaErr := func(status int, notFound bool, err error) error {
		return &MetadataError{Tool: def.Name, Version: version, URL: endpoint, StatusCode: status, NotFound: notFound, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Release{}, metaErr(0, false, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Release{}, metaErr(0, false, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Release{}, metaErr(resp.StatusCode, true, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Release{}, metaErr(resp.StatusCode, false, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return Release{}, metaErr(0, false, fmt.Errorf("decode release: %w", err))
	}
	return release, nil
}

var _ ReleaseIndex = (*GitHubIndex)(nil)
