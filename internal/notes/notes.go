// Package notes generates per-version release notes and the rolling changelog.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"fwrelease/internal/release"
	"fwrelease/pkg/templates"
)

// MaxPerDoc and MaxRendered bound how many extracted changes are kept.
const (
	MaxPerDoc   = 3
	MaxRendered = 5
)

var (
	notesFilePattern = regexp.MustCompile(`^RELEASE_NOTES_v(\d+(?:\.\d+)*)\.md$`)

	criticalPattern    = regexp.MustCompile(`(?:CRITICAL|Critical)[^\n]*\n([^\n]+)`)
	featurePattern     = regexp.MustCompile(`(?:NEW|New Feature)[^\n]*\n([^\n]+)`)
	improvementPattern = regexp.MustCompile(`(?:IMPROVE|Improvement)[^\n]*\n([^\n]+)`)

	overviewSection = regexp.MustCompile(`(?s)## 🎯 Overview\n\n(.*?)\n\n---`)
	criticalSection = regexp.MustCompile(`(?s)## 🔥 Critical Fixes\n\n(.*?)\n\n---`)
	featureSection  = regexp.MustCompile(`(?s)## 🆕 New Features\n\n(.*?)\n\n---`)
)

// Release is a saved release notes document.
type Release struct {
	Version string // as written in the file name, without the leading v
	Path    string
	parsed  *version.Version
}

// Changes are the items pulled from project documents.
type Changes struct {
	CriticalFixes []string
	NewFeatures   []string
	Improvements  []string
}

// FileName returns the notes file name for version.
func FileName(ver string) string {
	return fmt.Sprintf("RELEASE_NOTES_%s.md", release.DirName(ver))
}

// ListReleases returns every RELEASE_NOTES_v*.md in dir, newest first.
// A missing dir yields no releases.
func ListReleases(dir string) ([]Release, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read releases directory: %w", err)
	}

	var releases []Release
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := notesFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		v, err := version.NewVersion(m[1])
		if err != nil {
			continue
		}
		releases = append(releases, Release{
			Version: m[1],
			Path:    filepath.Join(dir, entry.Name()),
			parsed:  v,
		})
	}

	sort.Slice(releases, func(i, j int) bool {
		return releases[i].parsed.GreaterThan(releases[j].parsed)
	})
	return releases, nil
}

// PreviousRelease returns the highest saved release that is not current, or
// nil when there is none.
func PreviousRelease(dir, current string) (*Release, error) {
	releases, err := ListReleases(dir)
	if err != nil {
		return nil, err
	}

	cur, curErr := version.NewVersion(release.BareVersion(current))
	for i := range releases {
		r := releases[i]
		if curErr == nil && r.parsed.Equal(cur) {
			continue
		}
		if curErr != nil && r.Version == release.BareVersion(current) {
			continue
		}
		return &r, nil
	}
	return nil, nil
}

// ExtractChanges scans docs under dir. The line after each marker line is one
// item; at most MaxPerDoc items per category are taken from each document.
// Missing documents are skipped.
func ExtractChanges(dir string, docs []string) Changes {
	var c Changes
	for _, doc := range docs {
		data, err := os.ReadFile(filepath.Join(dir, doc))
		if err != nil {
			continue
		}
		content := string(data)
		c.CriticalFixes = append(c.CriticalFixes, findItems(criticalPattern, content)...)
		c.NewFeatures = append(c.NewFeatures, findItems(featurePattern, content)...)
		c.Improvements = append(c.Improvements, findItems(improvementPattern, content)...)
	}
	return c
}

func findItems(re *regexp.Regexp, content string) []string {
	var items []string
	for _, m := range re.FindAllStringSubmatch(content, MaxPerDoc) {
		item := strings.TrimSpace(m[1])
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func limit(items []string) []string {
	if len(items) > MaxRendered {
		return items[:MaxRendered]
	}
	return items
}

// Render produces the Markdown notes for ver.
func Render(product, ver string, previous *Release, changes Changes, date time.Time) (string, error) {
	data := map[string]any{
		"Product":       product,
		"Version":       release.BareVersion(ver),
		"Date":          date.Format("2006-01-02"),
		"Previous":      "",
		"CriticalFixes": limit(changes.CriticalFixes),
		"NewFeatures":   limit(changes.NewFeatures),
		"Improvements":  limit(changes.Improvements),
	}
	if previous != nil {
		data["Previous"] = previous.Version
	}
	return templates.Render(templates.ReleaseNotes, data)
}

// Save writes the notes into the releases dir and the project dir and
// returns both paths.
func Save(releasesDir, projectDir, ver, content string) (string, string, error) {
	if err := os.MkdirAll(releasesDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create releases directory: %w", err)
	}

	primary := filepath.Join(releasesDir, FileName(ver))
	if err := os.WriteFile(primary, []byte(content), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write release notes: %w", err)
	}

	secondary := filepath.Join(projectDir, FileName(ver))
	if err := os.WriteFile(secondary, []byte(content), 0644); err != nil {
		return primary, "", fmt.Errorf("failed to write release notes copy: %w", err)
	}
	return primary, secondary, nil
}

// Changelog rebuilds the changelog at path from every saved notes document
// in releasesDir, newest first.
func Changelog(product, releasesDir, path string) error {
	releases, err := ListReleases(releasesDir)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Changelog - %s Firmware\n\n", product)
	b.WriteString("All notable changes to this project will be documented in this file.\n\n")
	b.WriteString("---\n\n")

	for _, r := range releases {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", r.Path, err)
		}
		content := string(data)

		fmt.Fprintf(&b, "## Version %s\n\n", r.Version)
		if m := overviewSection.FindStringSubmatch(content); m != nil {
			b.WriteString(m[1] + "\n\n")
		}
		if m := criticalSection.FindStringSubmatch(content); m != nil {
			b.WriteString("### Critical Fixes\n" + m[1] + "\n\n")
		}
		if m := featureSection.FindStringSubmatch(content); m != nil {
			b.WriteString("### New Features\n" + m[1] + "\n\n")
		}

		link := r.Path
		if rel, err := filepath.Rel(filepath.Dir(path), r.Path); err == nil {
			link = filepath.ToSlash(rel)
		}
		fmt.Fprintf(&b, "[Full Release Notes](%s)\n\n", link)
		b.WriteString("---\n\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write changelog: %w", err)
	}
	return nil
}
