// Package lock provides cross-process advisory locks on dedicated lock files.
//
// A lock is taken on a file next to the resource it protects, never on the
// resource itself. The OS releases the lock when the holder exits, so a
// crashed holder never leaves a stale claim behind.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
	// WaitNotice is how long a waiter blocks before it reports progress.
	WaitNotice = 2 * time.Second
)

// ErrTimeout matches every *TimeoutError.
var ErrTimeout = errors.New("lock timeout")

// TimeoutError reports a lock that could not be acquired in time.
type TimeoutError struct {
	Resource string
	Purpose  string
	Waited   time.Duration
	Holder   *Holder
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for lock %s (%s)", e.Waited.Round(time.Millisecond), e.Resource, e.Purpose)
	if e.Holder != nil {
		msg += fmt.Sprintf("; held by pid %d for %q", e.Holder.PID, e.Holder.Purpose)
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Holder is the metadata an exclusive holder writes into its lock file.
type Holder struct {
	Token      string    `json:"token"`
	PID        int       `json:"pid"`
	Purpose    string    `json:"purpose"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Mode selects exclusive or shared locking.
type Mode int

const (
	Exclusive Mode = iota
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

type options struct {
	logger zerolog.Logger
	onWait func(path string, waited time.Duration, holder *Holder)
	notice time.Duration
	now    func() time.Time
}

// Option customises acquisition.
type Option func(*options)

// WithLogger routes wait notices to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// OnWait is called once when a waiter has been blocked for WaitNotice.
func OnWait(fn func(path string, waited time.Duration, holder *Holder)) Option {
	return func(o *options) { o.onWait = fn }
}

// Guard represents a held lock. Release is safe to call more than once.
type Guard struct {
	path    string
	token   string
	purpose string
	mode    Mode
	file    *os.File
	once    sync.Once
	err     error
}

// Path returns the lock file path.
func (g *Guard) Path() string { return g.path }

// Token identifies this acquisition.
func (g *Guard) Token() string { return g.token }

// Mode reports whether the guard is exclusive or shared.
func (g *Guard) Mode() Mode { return g.mode }

// Release drops the OS lock and closes the lock file. The lock file itself is
// left in place; removing it would race with waiters holding an open handle.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		if g.mode == Exclusive {
			_ = g.file.Truncate(0)
		}
		unlockErr := unlockFile(g.file)
		closeErr := g.file.Close()
		g.err = errors.Join(unlockErr, closeErr)
	})
	return g.err
}

// Acquire takes an exclusive lock on path, waiting up to timeout.
func Acquire(ctx context.Context, path string, timeout time.Duration, purpose string, opts ...Option) (*Guard, error) {
	return acquire(ctx, path, timeout, purpose, Exclusive, opts)
}

// AcquireShared takes a shared lock on path, waiting up to timeout for any
// exclusive holder to finish.
func AcquireShared(ctx context.Context, path string, timeout time.Duration, purpose string, opts ...Option) (*Guard, error) {
	return acquire(ctx, path, timeout, purpose, Shared, opts)
}

// With runs fn while holding an exclusive lock on path. The lock is released
// on every return path, including a panic in fn.
func With(ctx context.Context, path string, timeout time.Duration, purpose string, fn func() error, opts ...Option) (err error) {
	guard, err := Acquire(ctx, path, timeout, purpose, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := guard.Release(); releaseErr != nil && err == nil {
			err = fmt.Errorf("release lock %s: %w", path, releaseErr)
		}
	}()
	return fn()
}

func acquire(ctx context.Context, path string, timeout time.Duration, purpose string, mode Mode, opts []Option) (*Guard, error) {
	o := options{logger: zerolog.Nop(), notice: WaitNotice, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	start := o.now()
	deadline := start.Add(timeout)
	delay := initialBackoff
	notified := false

	for {
		locked, err := tryLock(file, mode)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if locked {
			break
		}

		waited := o.now().Sub(start)
		if !o.now().Before(deadline) {
			holder, _ := ReadHolder(path)
			file.Close()
			return nil, &TimeoutError{Resource: path, Purpose: purpose, Waited: waited, Holder: holder}
		}
		if !notified && waited >= o.notice {
			notified = true
			holder, _ := ReadHolder(path)
			event := o.logger.Info().Str("lock", path).Str("purpose", purpose).Dur("waited", waited)
			if holder != nil {
				event = event.Int("holder_pid", holder.PID).Str("holder_purpose", holder.Purpose)
			}
			event.Msg("waiting for lock")
			if o.onWait != nil {
				o.onWait(path, waited, holder)
			}
		}

		sleep := delay
		if remaining := deadline.Sub(o.now()); sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			file.Close()
			return nil, fmt.Errorf("acquire lock %s: %w", path, ctx.Err())
		case <-timer.C:
		}
		delay = nextBackoff(delay)
	}

	guard := &Guard{
		path:    path,
		token:   uuid.NewString(),
		purpose: purpose,
		mode:    mode,
		file:    file,
	}
	if mode == Exclusive {
		if err := writeHolder(file, Holder{Token: guard.token, PID: os.Getpid(), Purpose: purpose, AcquiredAt: o.now().UTC()}); err != nil {
			o.logger.Debug().Err(err).Str("lock", path).Msg("record lock holder")
		}
	}
	return guard, nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func writeHolder(file *os.File, h Holder) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := file.Truncate(0); err != nil {
		return err
	}
	_, err = file.WriteAt(data, 0)
	return err
}

// ReadHolder returns the metadata written by the current exclusive holder, or
// nil when the lock file is empty or unreadable.
func ReadHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
