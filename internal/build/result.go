package build

import (
	"time"

	"fwrelease/internal/config"
	"fwrelease/internal/release"
)

// Per-configuration statuses
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusNoArtifact = "no_artifact"
	StatusSkipped    = "skipped"
)

// Result is the outcome of one configuration.
type Result struct {
	Config   config.BuildConfig
	Status   string
	Record   *Record // nil unless Status is success
	LogPath  string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the configuration produced a binary.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Summary is the ordered outcome of a run.
type Summary struct {
	RunID     string
	Version   string
	Results   []Result
	Bundle    *release.Bundle // nil when nothing was packaged
	Cancelled bool
}

// Succeeded returns the number of successful configurations.
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of configurations that did not succeed, skipped included.
func (s *Summary) Failed() int {
	return len(s.Results) - s.Succeeded()
}

// AllSucceeded is true only when every configuration built.
func (s *Summary) AllSucceeded() bool {
	return len(s.Results) > 0 && s.Failed() == 0
}

// SuccessfulOutputs lists output names of successful configurations in order.
func (s *Summary) SuccessfulOutputs() []string {
	var names []string
	for _, r := range s.Results {
		if r.Succeeded() {
			names = append(names, r.Config.Output)
		}
	}
	return names
}
