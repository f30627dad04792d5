// Package server implements the read-only HTTP status service over the
// build history.
//
// This package provides:
//   - Health endpoint listing the configured outputs
//   - Per-output status (latest build and recent history)
//   - Recent runs and the builds of a single run
//   - Per-IP rate limiting and structured request logging
//
// The server never triggers builds; it only reads internal/history.
package server
