package build

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// RunLock keeps two runs from patching the same header at once.
//
// Locking is two-level: an in-process mutex per header path, and an
// exclusive lock file next to the header so separate fwrelease processes
// also see each other.
type RunLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunLock creates an empty lock set.
func NewRunLock() *RunLock {
	return &RunLock{locks: make(map[string]*sync.Mutex)}
}

// LockPath returns the lock file used for source.
func LockPath(source string) string {
	return source + ".fwrelease.lock"
}

// TryLock acquires the lock for source without blocking. It returns
// ErrBuildInProgress when another run already holds it.
func (rl *RunLock) TryLock(source string) error {
	rl.mu.Lock()
	lock, exists := rl.locks[source]
	if !exists {
		lock = &sync.Mutex{}
		rl.locks[source] = lock
	}
	rl.mu.Unlock()

	if !lock.TryLock() {
		return ErrBuildInProgress
	}

	f, err := os.OpenFile(LockPath(source), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		lock.Unlock()
		if os.IsExist(err) {
			return fmt.Errorf("%w: remove %s if no other run is active", ErrBuildInProgress, LockPath(source))
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	fmt.Fprint(f, strconv.Itoa(os.Getpid()))
	f.Close()
	return nil
}

// Unlock releases the lock for source. Call it only after a successful TryLock,
// typically with defer.
func (rl *RunLock) Unlock(source string) {
	rl.mu.Lock()
	lock := rl.locks[source]
	rl.mu.Unlock()

	if lock == nil {
		return
	}
	os.Remove(LockPath(source))
	lock.Unlock()
}
