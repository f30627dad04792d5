// Package fileutil holds the file system helpers shared by the build,
// release and CLI packages.
package fileutil

import (
	"os"
	"path/filepath"
)

// SystemConfigDir is the last place a config file is looked for.
const SystemConfigDir = "/etc/fwrelease"

// ConfigSearchPaths lists where a config named filename is looked for, in
// order: the working directory, ./config, then SystemConfigDir.
func ConfigSearchPaths(filename string) []string {
	return []string{
		filename,
		filepath.Join("config", filename),
		filepath.Join(SystemConfigDir, filename),
	}
}

// FindConfig returns the first regular file named filename on the search
// paths, or "" when there is none.
func FindConfig(filename string) string {
	for _, path := range ConfigSearchPaths(filename) {
		if FileExists(path) {
			return path
		}
	}
	return ""
}

// FileExists reports whether path is an existing non-directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path is an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PathExists reports whether anything exists at path.
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
