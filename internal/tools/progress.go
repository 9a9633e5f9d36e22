package tools

// Stage names a step of an installation.
type Stage string

const (
	StageWaiting     Stage = "waiting for lock"
	StageMetadata    Stage = "fetching metadata"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageFallback    Stage = "building with cargo"
	StageVerifying   Stage = "verifying"
	StageInstalled   Stage = "installed"
	StageCached      Stage = "cached"
	StageFailed      Stage = "failed"
)

// Reporter receives installation progress. Implementations must be safe for
// use from the installing goroutine.
type Reporter interface {
	Stage(tool, version string, stage Stage, detail string)
	Bytes(tool, version string, done, total int64)
}

type nopReporter struct{}

func (nopReporter) Stage(string, string, Stage, string) {}
func (nopReporter) Bytes(string, string, int64, int64)  {}
