package tools

import (
	"fmt"
	"time"
)

// Source records where a resolved executable came from.
type Source string

const (
	// SourceCache marks a state-record hit whose origin was not recorded.
	SourceCache   Source = "cache"
	SourceManaged Source = "managed"
	SourceSystem  Source = "system"
)

// Info describes a resolved executable.
type Info struct {
	Tool      string    `json:"tool" yaml:"tool"`
	Path      string    `json:"path" yaml:"path"`
	Version   string    `json:"version" yaml:"version"`
	Source    Source    `json:"source" yaml:"source"`
	CheckedAt time.Time `json:"checked_at" yaml:"checked_at"`
}

// Kind is the outcome of a resolution.
type Kind int

const (
	// Cached came straight from the project state record.
	Cached Kind = iota
	// Resolved was found by searching the managed cache and system PATH.
	Resolved
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Cached:
		return "cached"
	case Resolved:
		return "resolved"
	default:
		return "not_found"
	}
}

// MarshalText renders the kind for JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the form written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "cached":
		*k = Cached
	case "resolved":
		*k = Resolved
	case "not_found":
		*k = NotFound
	default:
		return fmt.Errorf("unknown resolution kind %q", text)
	}
	return nil
}

// Request is the caller contract for resolution.
type Request struct {
	Tool            string
	RequiredVersion string
	ProjectRoot     string
	ForceRefresh    bool
}

// Resolution is the result of Resolver.Resolve.
type Resolution struct {
	Kind              Kind     `json:"kind" yaml:"kind"`
	Info              Info     `json:"info" yaml:"info"`
	RequiredVersion   string   `json:"required_version" yaml:"required_version"`
	SearchedLocations []string `json:"searched_locations,omitempty" yaml:"searched_locations,omitempty"`
}

// Found reports whether an executable was located.
func (r Resolution) Found() bool {
	return r.Kind != NotFound
}

// Err converts a NotFound resolution into a *NotFoundError.
func (r Resolution) Err() error {
	if r.Found() {
		return nil
	}
	return &NotFoundError{
		Tool:              r.Info.Tool,
		RequiredVersion:   r.RequiredVersion,
		SearchedLocations: append([]string(nil), r.SearchedLocations...),
	}
}

func (r Resolution) String() string {
	if !r.Found() {
		return fmt.Sprintf("%s %s not found", r.Info.Tool, r.RequiredVersion)
	}
	return fmt.Sprintf("%s %s (%s, %s) at %s", r.Info.Tool, r.Info.Version, r.Info.Source, r.Kind, r.Info.Path)
}
