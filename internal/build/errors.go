package build

import "errors"

var (
	// ErrToolchainUnavailable means the compiler could not be run at all.
	ErrToolchainUnavailable = errors.New("toolchain unavailable")

	// ErrArtifactMissing means a compile exited 0 but left no binary behind.
	ErrArtifactMissing = errors.New("build artifact not found")

	// ErrBuildsFailed is returned when at least one configuration did not succeed.
	ErrBuildsFailed = errors.New("one or more builds failed")

	// ErrBuildCancelled is returned when a run was interrupted. Nothing is
	// packaged, even when every configuration had already built.
	ErrBuildCancelled = errors.New("build cancelled, release not packaged")

	// ErrBuildInProgress is returned when another run holds the lock on the header.
	ErrBuildInProgress = errors.New("build already in progress")
)
