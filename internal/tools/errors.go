package tools

import (
	"errors"
	"fmt"
	"strings"

	"typstlab/internal/lock"
)

var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrInvalidVersion      = errors.New("invalid required version")
	ErrNotFound            = errors.New("tool version not found")
	ErrVersionMismatch     = errors.New("version mismatch")
	ErrMetadataFetch       = errors.New("release metadata fetch failed")
	ErrAssetSelection      = errors.New("asset selection failed")
	ErrDownload            = errors.New("download failed")
	ErrExtraction          = errors.New("extraction failed")
	ErrVerification        = errors.New("verification failed")
	ErrFallbackUnavailable = errors.New("fallback installer unavailable")
	ErrNetworkDisabled     = errors.New("network access disabled by project policy")
)

// NotFoundError carries every location examined while resolving.
type NotFoundError struct {
	Tool              string
	RequiredVersion   string
	SearchedLocations []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s not found", e.Tool, e.RequiredVersion)
	if len(e.SearchedLocations) > 0 {
		b.WriteString("; searched:")
		for _, loc := range e.SearchedLocations {
			b.WriteString("\n  - ")
			b.WriteString(loc)
		}
	}
	return b.String()
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidVersionError rejects anything other than an exact semantic version.
type InvalidVersionError struct {
	Version string
	Reason  string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid required version %q: %s", e.Version, e.Reason)
}

func (e *InvalidVersionError) Is(target error) bool { return target == ErrInvalidVersion }

// VersionMismatchError reports a binary that does not report the expected version.
type VersionMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s reports version %s, expected %s", e.Path, e.Actual, e.Expected)
}

func (e *VersionMismatchError) Is(target error) bool { return target == ErrVersionMismatch }

// MetadataError wraps failures talking to the release index.
type MetadataError struct {
	Tool       string
	Version    string
	URL        string
	StatusCode int
	// NotFound is set when the index has no release for the version tag.
	NotFound bool
	Err      error
}

func (e *MetadataError) Error() string {
	switch {
	case e.NotFound:
		return fmt.Sprintf("no %s release for version %s at %s", e.Tool, e.Version, e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s release %s: unexpected status %d from %s", e.Tool, e.Version, e.StatusCode, e.URL)
	default:
		return fmt.Sprintf("fetch %s release %s: %v", e.Tool, e.Version, e.Err)
	}
}

func (e *MetadataError) Is(target error) bool { return target == ErrMetadataFetch }
func (e *MetadataError) Unwrap() error        { return e.Err }

// SelectionReason explains an asset selection failure.
type SelectionReason string

const (
	SelectionNone        SelectionReason = "none"
	SelectionAmbiguous   SelectionReason = "ambiguous"
	SelectionUnsupported SelectionReason = "unsupported platform"
)

// AssetSelectionError reports zero or several matching release assets.
type AssetSelectionError struct {
	Reason     SelectionReason
	Target     string
	Candidates []string
}

func (e *AssetSelectionError) Error() string {
	switch e.Reason {
	case SelectionAmbiguous:
		return fmt.Sprintf("asset selection (%s): %d assets match %s: %s", e.Reason, len(e.Candidates), e.Target, strings.Join(e.Candidates, ", "))
	case SelectionUnsupported:
		return fmt.Sprintf("asset selection (%s): %s", e.Reason, e.Target)
	default:
		return fmt.Sprintf("asset selection (%s): no asset matches %s", e.Reason, e.Target)
	}
}

func (e *AssetSelectionError) Is(target error) bool { return target == ErrAssetSelection }

// DownloadError wraps transfer failures.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string        { return fmt.Sprintf("download %s: %v", e.URL, e.Err) }
func (e *DownloadError) Is(target error) bool { return target == ErrDownload }
func (e *DownloadError) Unwrap() error        { return e.Err }

// ExtractionError wraps archive unpacking failures.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string        { return fmt.Sprintf("extract %s: %v", e.Archive, e.Err) }
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }
func (e *ExtractionError) Unwrap() error        { return e.Err }

// VerificationError reports a placed or staged binary that failed its
// version check.
type VerificationError struct {
	Path string
	Err  error
}

func (e *VerificationError) Error() string        { return fmt.Sprintf("verify %s: %v", e.Path, e.Err) }
func (e *VerificationError) Is(target error) bool { return target == ErrVerification }
func (e *VerificationError) Unwrap() error        { return e.Err }

// Retryable reports whether err is worth retrying unchanged. Missing release
// tags, platform mismatches and bad binaries are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var meta *MetadataError
	if errors.As(err, &meta) {
		return !meta.NotFound && (meta.StatusCode == 0 || meta.StatusCode >= 500 || meta.StatusCode == 429 || meta.StatusCode == 403)
	}
	return errors.Is(err, ErrDownload) || errors.Is(err, lock.ErrTimeout)
}
