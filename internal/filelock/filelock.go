// Package filelock serializes changes to an on-disk directory across
// processes, so two commands never generate an identity at the same time.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Name is the lock file created inside a guarded directory.
const Name = ".lock"

const pollInterval = 10 * time.Millisecond

// ErrBusy is returned when the lock could not be taken in time.
var ErrBusy = errors.New("directory is locked by another process")

// Dir is an advisory lock on one directory.
type Dir struct {
	f *flock.Flock
}

// ForDir returns the lock for dir. Nothing touches the disk until it is taken.
func ForDir(dir string) *Dir {
	return &Dir{f: flock.New(filepath.Join(dir, Name))}
}

// Path is the lock file location.
func (d *Dir) Path() string { return d.f.Path() }

// Do runs fn with the lock held. It waits up to timeout for another holder
// to release it; a zero timeout tries once.
func (d *Dir) Do(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(d.f.Path()), 0700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	locked, err := d.acquire(ctx, timeout)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrBusy, d.f.Path())
	}
	defer d.f.Unlock()
	return fn()
}

func (d *Dir) acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return d.f.TryLock()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := d.f.TryLockContext(ctx, pollInterval)
	if err != nil && ctx.Err() == nil {
		return false, fmt.Errorf("acquire %s: %w", d.f.Path(), err)
	}
	return locked, nil
}
