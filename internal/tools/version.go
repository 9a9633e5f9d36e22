package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const (
	versionAttempts = 5
	versionBackoff  = 5 * time.Millisecond
)

// ValidateVersion accepts only an exact MAJOR.MINOR.PATCH[-pre][+build]
// version. Ranges, wildcards, partial versions and a leading "v" are refused.
func ValidateVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return &InvalidVersionError{Version: version, Reason: "empty"}
	}
	_, err := semver.StrictNewVersion(version)
	if err == nil {
		return nil
	}
	if strings.HasPrefix(version, "v") {
		return &InvalidVersionError{Version: version, Reason: "drop the leading \"v\""}
	}
	if _, cerr := semver.NewConstraint(version); cerr == nil {
		return &InvalidVersionError{Version: version, Reason: "version ranges are not allowed; pin an exact version"}
	}
	return &InvalidVersionError{Version: version, Reason: err.Error()}
}

// parseVersionOutput extracts the version token from "<tool> [v]X.Y.Z ...".
func parseVersionOutput(output string) (string, error) {
	line := firstLine(strings.TrimSpace(output))
	for _, field := range strings.Fields(line) {
		candidate := strings.TrimPrefix(field, "v")
		if _, err := semver.StrictNewVersion(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unrecognised version output %q", line)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// readVersion runs the tool's version switch. A freshly renamed binary can
// briefly fail with ETXTBSY on Linux, so busy errors are retried.
func readVersion(ctx context.Context, runner Runner, def ToolDefinition, path string) (string, error) {
	var (
		res RunResult
		err error
	)
	for attempt := 0; attempt < versionAttempts; attempt++ {
		res, err = runner.Run(ctx, path, []string{def.VersionSwitch}, RunOptions{})
		if err == nil || !isBusy(err) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(versionBackoff * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", path, def.VersionSwitch, err)
	}
	return parseVersionOutput(string(res.Stdout))
}

// compareVersions orders two exact versions; unparsable input sorts last.
func compareVersions(a, b string) int {
	va, errA := semver.StrictNewVersion(a)
	vb, errB := semver.StrictNewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
