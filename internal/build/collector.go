package build

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fwrelease/internal/config"
	"fwrelease/internal/firmware"
	"fwrelease/internal/release"
	"fwrelease/pkg/fileutil"
	"fwrelease/pkg/templates"
)

// Output folder file names
const (
	LogFile  = "build.log"
	InfoFile = "build_info.txt"
)

// Record is what the collector produced for one configuration.
type Record struct {
	OutputName  string
	Mode        int
	Identifier  string
	Version     string
	SizeBytes   int64
	BinaryPath  string
	VersionPath string
	InfoPath    string
	BuiltAt     time.Time
}

// SizeMB returns the binary size in mebibytes.
func (r *Record) SizeMB() float64 {
	return float64(r.SizeBytes) / (1024 * 1024)
}

// Collector moves the compiled binary out of the shared build directory.
type Collector struct {
	BuildDir string
	Pattern  string
	Source   string
	Schema   firmware.Schema
	Now      func() time.Time
}

// ClearStale removes binaries left in the shared build dir by an earlier
// compile, so a compile that exits 0 without output cannot pick one up.
func (c *Collector) ClearStale() error {
	matches, err := filepath.Glob(filepath.Join(c.BuildDir, c.Pattern))
	if err != nil {
		return fmt.Errorf("invalid artifact pattern: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale artifact: %w", err)
		}
	}
	return nil
}

// ClearOutput removes artifacts from a previous run of this configuration,
// leaving the folder itself (and any build log) in place.
func ClearOutput(outDir string) error {
	for _, name := range []string{release.FirmwareFile, release.VersionFile, InfoFile} {
		if err := os.Remove(filepath.Join(outDir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}
	return nil
}

// Collect copies the first binary matching the pattern into outDir, then
// writes the version file and the build info record. The version is read
// from the header as it is on disk at this moment.
func (c *Collector) Collect(cfg config.BuildConfig, outDir string) (*Record, error) {
	matches, err := filepath.Glob(filepath.Join(c.BuildDir, c.Pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid artifact pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no %s in %s", ErrArtifactMissing, c.Pattern, c.BuildDir)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	rec := &Record{
		OutputName:  cfg.Output,
		Mode:        cfg.Mode,
		Identifier:  cfg.Identifier,
		BinaryPath:  filepath.Join(outDir, release.FirmwareFile),
		VersionPath: filepath.Join(outDir, release.VersionFile),
		InfoPath:    filepath.Join(outDir, InfoFile),
		BuiltAt:     now(),
	}

	if err := fileutil.CopyFile(matches[0], rec.BinaryPath); err != nil {
		return nil, fmt.Errorf("failed to export binary: %w", err)
	}
	info, err := os.Stat(rec.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat binary: %w", err)
	}
	rec.SizeBytes = info.Size()

	rec.Version, err = c.Schema.ReadVersion(c.Source)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(rec.VersionPath, []byte(rec.Version), 0644); err != nil {
		return nil, fmt.Errorf("failed to write version file: %w", err)
	}

	body, err := templates.Render(templates.BuildInfo, map[string]any{
		"Mode":        rec.Mode,
		"Identifier":  rec.Identifier,
		"OutputName":  rec.OutputName,
		"Version":     rec.Version,
		"BuiltAt":     rec.BuiltAt.Format("2006-01-02 15:04:05"),
		"SizeMB":      fmt.Sprintf("%.2f", rec.SizeMB()),
		"BinaryPath":  rec.BinaryPath,
		"VersionPath": rec.VersionPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render build info: %w", err)
	}
	if err := os.WriteFile(rec.InfoPath, []byte(body), 0644); err != nil {
		return nil, fmt.Errorf("failed to write build info: %w", err)
	}

	return rec, nil
}
