package config

import (
	"errors"
	"fmt"
	"strings"

	"typstlab/internal/tools"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level" yaml:"level"` // "error" or "warning"
	Message string `json:"message" yaml:"message"`
}

// ValidateStrict runs all validations and returns structured results.
func (c Config) ValidateStrict() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateProject()...)
	results = append(results, c.validateTypst()...)
	results = append(results, c.validateUV()...)
	results = append(results, c.validateNetwork()...)
	results = append(results, c.validateInstall()...)
	return results
}

// Validate returns the error-level findings joined into one error.
func (c Config) Validate() error {
	var errs []error
	for _, r := range c.ValidateStrict() {
		if r.Level == "error" {
			errs = append(errs, errors.New(r.Message))
		}
	}
	return errors.Join(errs...)
}

func (c Config) validateProject() []ValidationResult {
	if strings.TrimSpace(c.Project.Name) == "" {
		return []ValidationResult{{Level: "warning", Message: "[project] name is not set"}}
	}
	return nil
}

func (c Config) validateTypst() []ValidationResult {
	if c.Typst.Version == "" {
		return []ValidationResult{{Level: "error", Message: "[typst] version is required"}}
	}
	if err := tools.ValidateVersion(c.Typst.Version); err != nil {
		return []ValidationResult{{Level: "error", Message: fmt.Sprintf("[typst] version: %v", err)}}
	}
	return nil
}

func (c Config) validateUV() []ValidationResult {
	uv := c.Tools.UV
	switch {
	case uv.Required && uv.Version == "":
		return []ValidationResult{{Level: "error", Message: "[tools.uv] version is required when required = true"}}
	case uv.Version != "":
		if err := tools.ValidateVersion(uv.Version); err != nil {
			return []ValidationResult{{Level: "error", Message: fmt.Sprintf("[tools.uv] version: %v", err)}}
		}
		if !uv.Required {
			return []ValidationResult{{Level: "warning", Message: "[tools.uv] version is set but required = false; uv will not be installed"}}
		}
	}
	return nil
}

func (c Config) validateNetwork() []ValidationResult {
	switch c.Network.Policy {
	case PolicyAuto, PolicyNever:
		return nil
	default:
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("[network] policy %q must be %q or %q", c.Network.Policy, PolicyAuto, PolicyNever),
		}}
	}
}

func (c Config) validateInstall() []ValidationResult {
	var results []ValidationResult
	if c.Install.LockTimeout < 0 {
		results = append(results, ValidationResult{Level: "error", Message: "[install] lock_timeout must be positive"})
	}
	if c.Install.DownloadTimeout < 0 {
		results = append(results, ValidationResult{Level: "error", Message: "[install] download_timeout must be positive"})
	}
	return results
}
