// Package destlock serializes access to a destination directory across
// processes. A lock file with a heartbeat timestamp is created in the
// destination; a second tarvault instance pointed at the same directory
// refuses to run while the lock is fresh, and takes over automatically when
// the holder died without cleaning up.
package destlock

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tarvault/tarvault/pkg/plog"
	"github.com/tarvault/tarvault/pkg/util"
)

// LockFileName is the name of the lock file created in the destination
// directory. The '~' prefix marks it as transient.
const LockFileName = ".~tarvault.lock"

// Vars so tests can shrink the timing.
var (
	heartbeatInterval = 1 * time.Minute
	// A lock not refreshed within three heartbeats is considered dead.
	staleTimeout = 3 * heartbeatInterval
)

// lockContent is the JSON payload written to the lock file.
type lockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	// Nonce disambiguates concurrent takeover attempts on a stale lock.
	Nonce string `json:"nonce,omitempty"`
}

// ErrHeld is returned when another live process holds the destination.
type ErrHeld struct {
	PID       int64
	Hostname  string
	TimeSince time.Duration
}

func (e *ErrHeld) Error() string {
	return fmt.Sprintf("destination is locked by PID %d on host %q, last updated %s ago",
		e.PID, e.Hostname, e.TimeSince.Truncate(time.Second))
}

var errLostRace = errors.New("lost takeover race for stale lock")

// Lock represents a held destination lock. Release must be called exactly
// once when the run finishes; releasing twice is a no-op.
type Lock struct {
	path    string
	content lockContent

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	held bool
}

// Acquire takes the destination lock for dir. It returns *ErrHeld when a
// live process owns the lock, and transparently takes over locks whose
// heartbeat went stale or whose file is corrupt.
func Acquire(ctx context.Context, dir string) (*Lock, error) {
	lockPath := filepath.Join(dir, LockFileName)

	const maxAttempts = 3
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := tryCreate(lockPath)
		if err == nil {
			l.startHeartbeat()
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
		}

		content, readErr := readContent(lockPath)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				// The holder released between our create and read; retry.
				continue
			}
			plog.Warn("Destination lock file is unreadable, treating as stale", "path", lockPath, "error", readErr)
		} else {
			elapsed := time.Since(content.LastUpdate)
			if elapsed < staleTimeout {
				return nil, &ErrHeld{PID: content.PID, Hostname: content.Hostname, TimeSince: elapsed}
			}
			plog.Warn("Taking over stale destination lock", "path", lockPath, "holderPid", content.PID, "age", elapsed)
		}

		l, err = takeover(lockPath)
		if err != nil {
			if errors.Is(err, errLostRace) {
				plog.Debug("Lost takeover race for stale lock, retrying")
			} else {
				plog.Warn("Stale lock takeover failed, retrying", "error", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		l.startHeartbeat()
		return l, nil
	}
	return nil, fmt.Errorf("failed to acquire destination lock %s after %d attempts", lockPath, maxAttempts)
}

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.held = false

	l.cancel()
	<-l.done

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove destination lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Destination lock released", "path", l.path)
}

// tryCreate acquires the lock with an O_EXCL create, which only succeeds for
// the first process to reach the file.
func tryCreate(lockPath string) (*Lock, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newContent()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock content: %w", err)
	}
	return newLock(lockPath, content), nil
}

// takeover replaces a stale or corrupt lock atomically and verifies by
// reading back that this process actually won.
func takeover(lockPath string) (*Lock, error) {
	content, err := newContent()
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(lockPath, content); err != nil {
		return nil, err
	}

	readback, err := readContent(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock after takeover: %w", err)
	}
	if readback.PID != content.PID || readback.Nonce != content.Nonce {
		return nil, errLostRace
	}
	return newLock(lockPath, content), nil
}

func newLock(lockPath string, content lockContent) *Lock {
	return &Lock{
		path:    lockPath,
		content: content,
		done:    make(chan struct{}),
		held:    true,
	}
}

func newContent() (lockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return lockContent{}, fmt.Errorf("failed to determine hostname: %w", err)
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return lockContent{}, fmt.Errorf("failed to generate lock nonce: %w", err)
	}
	return lockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: time.Now().UTC(),
		Nonce:      fmt.Sprintf("%x", nonce),
	}, nil
}

// startHeartbeat refreshes the lock's timestamp in the background so other
// processes can distinguish a long-running backup from a dead holder.
func (l *Lock) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.content.LastUpdate = time.Now().UTC()
				if err := writeAtomic(l.path, l.content); err != nil {
					// Keep ticking; a transient write failure just ages the
					// heartbeat.
					plog.Warn("Failed to refresh destination lock heartbeat", "path", l.path, "error", err)
				}
			}
		}
	}()
}

// writeAtomic updates the lock file via a same-directory temp file and
// rename, so readers never observe a partially written lock.
func writeAtomic(lockPath string, content lockContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmpPath, lockPath); err != nil {
		return fmt.Errorf("failed to replace lock file: %w", err)
	}
	return nil
}

// readContent parses the lock file. Empty or invalid content is retried
// briefly to ride out a concurrent heartbeat write on filesystems without
// atomic rename semantics.
func readContent(lockPath string) (lockContent, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			return lockContent{}, err
		}
		var content lockContent
		lastErr = json.Unmarshal(data, &content)
		if lastErr == nil {
			return content, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return lockContent{}, fmt.Errorf("lock file %s is corrupt: %w", lockPath, lastErr)
}
