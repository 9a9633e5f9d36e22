// Package state persists the per-project record of last-known tool
// resolutions. The record is a disposable cache: anything unreadable is
// replaced by an empty record instead of failing the caller.
package state

import (
	"encoding/json"
	"runtime"
	"time"
)

// SchemaVersion is the only on-disk layout this package writes.
const SchemaVersion = "1.0"

// Record is the decoded state file.
type Record struct {
	SchemaVersion string               `json:"schema_version"`
	Machine       Machine              `json:"machine"`
	Tools         map[string]ToolState `json:"tools,omitempty"`
	Sync          *Sync                `json:"sync,omitempty"`
	Build         *Build               `json:"build,omitempty"`
	Docs          json.RawMessage      `json:"docs,omitempty"`
}

// Machine identifies the host that wrote the record.
type Machine struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// ToolState is the persisted resolution of one managed tool.
type ToolState struct {
	ResolvedPath    string    `json:"resolved_path"`
	ResolvedVersion string    `json:"resolved_version"`
	ResolvedSource  string    `json:"resolved_source"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Sync records the last successful sync run.
type Sync struct {
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// Build records the most recent build.
type Build struct {
	Last *BuildRun `json:"last,omitempty"`
}

// BuildRun summarises one build invocation.
type BuildRun struct {
	Paper      string    `json:"paper"`
	Success    bool      `json:"success"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Empty returns a fresh record for the current machine.
func Empty() *Record {
	return &Record{
		SchemaVersion: SchemaVersion,
		Machine:       CurrentMachine(),
		Tools:         map[string]ToolState{},
	}
}

// CurrentMachine describes the running host.
func CurrentMachine() Machine {
	return Machine{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Tool returns the recorded state for name.
func (r *Record) Tool(name string) (ToolState, bool) {
	if r == nil || r.Tools == nil {
		return ToolState{}, false
	}
	ts, ok := r.Tools[name]
	return ts, ok
}

// SetTool records a resolution for name.
func (r *Record) SetTool(name string, ts ToolState) {
	if r.Tools == nil {
		r.Tools = map[string]ToolState{}
	}
	r.Tools[name] = ts
}

// ClearTool drops any recorded resolution for name.
func (r *Record) ClearTool(name string) {
	delete(r.Tools, name)
}

// MarkSynced stamps the sync section.
func (r *Record) MarkSynced(at time.Time) {
	at = at.UTC()
	r.Sync = &Sync{LastSync: &at}
}

// RecordBuild replaces the last-build section.
func (r *Record) RecordBuild(run BuildRun) {
	r.Build = &Build{Last: &run}
}
