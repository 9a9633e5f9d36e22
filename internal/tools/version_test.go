package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateVersionAccepts(t *testing.T) {
	for _, v := range []string{"0.13.1", "1.0.0", "1.0.0-rc.1", "0.14.0-beta.2+build.7"} {
		assert.NoError(t, ValidateVersion(v), v)
	}
}

func TestValidateVersionRejects(t *testing.T) {
	cases := map[string]string{
		"":         "empty",
		"   ":      "empty",
		"v0.13.1":  "leading",
		"^0.13":    "ranges",
		">=0.12.0": "ranges",
		"0.13.x":   "ranges",
		"~0.13.1":  "ranges",
		"latest":   "",
		"0.13.1.2": "",
	}
	for input, fragment := range cases {
		err := ValidateVersion(input)
		require.Error(t, err, "%q", input)
		assert.ErrorIs(t, err, ErrInvalidVersion, "%q", input)
		if fragment != "" {
			assert.Contains(t, err.Error(), fragment, "%q", input)
		}
	}
}

func TestParseVersionOutput(t *testing.T) {
	cases := map[string]string{
		"typst 0.13.1 (8ace67d9 @ 2025-03-13)\n": "0.13.1",
		"uv 0.5.4 (c62c83c37 2024-11-20)":        "0.5.4",
		"typst v0.12.0":                          "0.12.0",
		"typst 0.14.0-rc.1\nwith extra output\n": "0.14.0-rc.1",
	}
	for output, want := range cases {
		got, err := parseVersionOutput(output)
		require.NoError(t, err, output)
		assert.Equal(t, want, got)
	}

	_, err := parseVersionOutput("command not found")
	assert.Error(t, err)
	_, err = parseVersionOutput("")
	assert.Error(t, err)
}

func TestCompareVersions(t *testing.T) {
	assert.Positive(t, compareVersions("0.13.1", "0.13.0"))
	assert.Negative(t, compareVersions("0.13.0-rc.1", "0.13.0"))
	assert.Zero(t, compareVersions("1.2.3", "1.2.3"))
	assert.Negative(t, compareVersions("junk", "0.1.0"))
}

type scriptedRunner struct {
	errs   []error
	stdout string
	calls  int
}

func (s *scriptedRunner) Run(context.Context, string, []string, RunOptions) (RunResult, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return RunResult{}, err
	}
	return RunResult{Stdout: []byte(s.stdout)}, nil
}

func TestReadVersionDoesNotRetryOrdinaryFailures(t *testing.T) {
	def, _ := Definition("typst")
	runner := &scriptedRunner{errs: []error{errors.New("exit status 1")}}
	_, err := readVersion(context.Background(), runner, def, "/opt/typst")
	require.Error(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, err.Error(), "/opt/typst --version")
}
