package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"typstlab/internal/paths"
)

// EnvLogLevel overrides the level chosen from the verbose flag.
const EnvLogLevel = "TYPSTLAB_LOG_LEVEL"

// Options tune where log lines go besides the project log file.
type Options struct {
	// Verbose mirrors log lines to Console and lowers the level to debug.
	Verbose bool
	Console io.Writer
}

// New creates a logger that writes JSON lines to a timestamped file inside
// the project's logs directory. The returned closer should be closed when
// logging is no longer needed.
func New(p paths.ProjectPaths, opts Options) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(p.LogsDir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(p.LogsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if opts.Verbose {
		out = zerolog.MultiLevelWriter(file, consoleWriter(opts.Console))
	}
	logger := zerolog.New(out).Level(level(opts.Verbose)).With().Timestamp().Int("pid", os.Getpid()).Logger()
	return logger, file, nil
}

// Console returns a stderr-style logger for commands running outside a
// project. Without verbose it discards everything.
func Console(w io.Writer, verbose bool) zerolog.Logger {
	if !verbose {
		if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); !ok || lvl == zerolog.Disabled {
			return zerolog.Nop()
		}
	}
	return zerolog.New(consoleWriter(w)).Level(level(verbose)).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

func level(verbose bool) zerolog.Level {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		return lvl
	}
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// ParseLevel maps a level name to a zerolog level. Unknown or empty input
// reports false so the caller keeps its default.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "none", "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.NoLevel, false
	}
}
