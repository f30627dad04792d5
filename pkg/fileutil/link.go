package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// PointLink makes link point at target. A new link is created next to it
// and renamed over the old one, so readers see either the old or the new
// target and never a missing link.
func PointLink(link, target string) error {
	tmp := link + ".tmp"
	_ = os.Remove(tmp)

	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", link, err)
	}
	return nil
}

// LinkTarget returns the path link finally resolves to. It fails when link
// is missing or is not a symlink.
func LinkTarget(link string) (string, error) {
	info, err := os.Lstat(link)
	if err != nil {
		return "", fmt.Errorf("failed to read link: %w", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return "", fmt.Errorf("%s is not a symlink", link)
	}

	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", link, err)
	}
	return resolved, nil
}
