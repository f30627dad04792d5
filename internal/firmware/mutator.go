package firmware

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrMutation wraps failures to write a build's values into the header.
var ErrMutation = errors.New("configuration mutation failed")

// Mutator writes per-build values into the guarded header.
type Mutator struct {
	Guard  *Guard
	Schema Schema
	Logger *slog.Logger
}

// NewMutator creates a mutator over guard using schema.
func NewMutator(guard *Guard, schema Schema, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{Guard: guard, Schema: schema, Logger: logger}
}

// Apply renders p into the pristine header and writes it in place. Every call
// starts from the backup, so no value from a previous build can leak through.
// Declarations missing from the header are returned and logged, not treated as errors.
func (m *Mutator) Apply(p Params) ([]string, error) {
	pristine, err := m.Guard.Pristine()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMutation, err)
	}

	rendered, missing := m.Schema.Render(pristine, p)
	for _, name := range missing {
		m.Logger.Warn("declaration not found in configuration source",
			"name", name,
			"source", m.Guard.Source())
	}

	if err := os.WriteFile(m.Guard.Source(), rendered, 0644); err != nil {
		return missing, fmt.Errorf("%w: %v", ErrMutation, err)
	}

	m.Logger.Info("configuration source updated",
		"mode", p.Mode,
		"identifier", p.Identifier,
		"debug", p.Debug)
	return missing, nil
}
