package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// File modes for what fwrelease writes outside the release bundle. Release
// artifacts are handed to other teams and keep ordinary modes.
const (
	PermConfigFile  os.FileMode = 0640 // fwrelease.yaml may hold publish.token
	PermLogFile     os.FileMode = 0640
	PermDBFile      os.FileMode = 0640
	PermScratchFile os.FileMode = 0600 // email drafts in the shared temp dir
	PermDirectory   os.FileMode = 0750 // state directories such as the history db's
)

// WritePrivateFile writes data to path with exactly perm, creating parent
// directories as needed and replacing any existing content.
func WritePrivateFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	// OpenFile is subject to umask and leaves an existing file's mode alone
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// CreateStateDir creates path and its parents, then sets path to perm.
func CreateStateDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

// CheckPrivate fails when users other than owner and group can read or
// write the file at path.
func CheckPrivate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	perm := info.Mode().Perm()
	switch {
	case perm&0002 != 0:
		return fmt.Errorf("%s is world-writable (%04o); run chmod %o %s", path, perm, PermConfigFile, path)
	case perm&0004 != 0:
		return fmt.Errorf("%s is world-readable (%04o) and holds a token; run chmod %o %s", path, perm, PermConfigFile, path)
	}
	return nil
}
