package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	repoPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+$`)
	versionPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+$`)
	outputPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRepo ensures an owner/name pair is safe to pass to the GitHub API.
func ValidateRepo(repo string) error {
	if repo == "" {
		return fmt.Errorf("repository cannot be empty")
	}
	if strings.Contains(repo, "..") {
		return fmt.Errorf("repository contains traversal elements")
	}
	if !repoPattern.MatchString(repo) {
		return fmt.Errorf("repository must be owner/name, got '%s'", repo)
	}
	return nil
}

// ValidateVersion ensures a version string is safe to embed in a file or directory name.
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if strings.HasPrefix(version, "-") || strings.HasPrefix(version, ".") {
		return fmt.Errorf("version cannot start with '-' or '.'")
	}
	if strings.Contains(version, "..") {
		return fmt.Errorf("version contains traversal elements")
	}
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("version contains invalid characters (only a-z, A-Z, 0-9, _, ., +, - allowed)")
	}
	return nil
}

// ValidateOutputName ensures an output name is safe for use in paths and URLs.
func ValidateOutputName(name string) error {
	if name == "" {
		return fmt.Errorf("output name cannot be empty")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("output name cannot start with '-'")
	}
	if !outputPattern.MatchString(name) {
		return fmt.Errorf("output name '%s' contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)", name)
	}
	return nil
}

// WithinDir resolves target, following symlinks, and fails unless it is dir
// itself or lies below it.
func WithinDir(dir, target string) (string, error) {
	resolve := func(p string) (string, error) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		return filepath.EvalSymlinks(abs)
	}

	base, err := resolve(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	resolved, err := resolve(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", target, err)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", resolved, base)
	}
	return resolved, nil
}
