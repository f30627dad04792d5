// Package release assembles successful build outputs into a versioned
// release directory and archive.
package release

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fwrelease/internal/console"
	"fwrelease/internal/security"
	"fwrelease/pkg/fileutil"
)

// File names shared with the build output layout.
const (
	FirmwareFile = "firmware.bin"
	VersionFile  = "fw_version.txt"
	NotesFile    = "RELEASE_NOTES.md"
	LatestLink   = "latest"
)

// Packager builds the release bundle for one version.
type Packager struct {
	Root          string // release root, holds v<version>/ and the archives
	OutputDir     string // per-configuration build outputs
	SupportDir    string // flash support files copied wholesale
	NotesDirs     []string // where RELEASE_NOTES*.md are looked up, in order
	ArchivePrefix string
	ArchiveFormat string
	Logger        *slog.Logger
	Console       *console.Console
}

// Bundle describes a packaged release.
type Bundle struct {
	Version     string
	Dir         string
	Outputs     []string
	Notes       string // source notes file, empty if none was found
	Support     bool
	Archive     string
	ArchiveSize int64
	ArchiveErr  error
}

// BareVersion strips one leading "v" so directory names never read "vv".
func BareVersion(version string) string {
	return strings.TrimPrefix(version, "v")
}

// DirName returns the release directory name for version.
func DirName(version string) string {
	return "v" + BareVersion(version)
}

// LatestVersion returns the version the latest link under root points at.
func LatestVersion(root string) (string, error) {
	target, err := fileutil.LinkTarget(filepath.Join(root, LatestLink))
	if err != nil {
		return "", fmt.Errorf("no latest release under %s: %w", root, err)
	}
	return BareVersion(filepath.Base(target)), nil
}

// ArchiveName returns the archive file name for version.
func (p *Packager) ArchiveName(version string) string {
	return fmt.Sprintf("%s_%s%s", p.ArchivePrefix, DirName(version), ArchiveExt(p.ArchiveFormat))
}

// NotesCandidates lists release notes files in preference order: the
// version-specific file in each of dirs, then the generic one in each.
func NotesCandidates(version string, dirs ...string) []string {
	specific := fmt.Sprintf("RELEASE_NOTES_%s.md", DirName(version))
	out := make([]string, 0, 2*len(dirs))
	for _, name := range []string{specific, NotesFile} {
		for _, dir := range dirs {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

func (p *Packager) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Packager) console() *console.Console {
	if p.Console == nil {
		return console.Discard()
	}
	return p.Console
}

// Package recreates <Root>/v<version>, copies the binaries and version files
// of the given outputs, the support files and release notes, then writes the
// archive and points the latest link at the new directory.
//
// Copy failures are returned. An archive failure is recorded on the bundle and
// never returned, since the release directory itself is still usable.
func (p *Packager) Package(ctx context.Context, version string, outputs []string) (*Bundle, error) {
	if err := security.ValidateVersion(BareVersion(version)); err != nil {
		return nil, fmt.Errorf("invalid release version: %w", err)
	}

	log := p.logger()
	out := p.console()

	dir := filepath.Join(p.Root, DirName(version))
	bundle := &Bundle{Version: version, Dir: dir}

	out.Step("Copying release-ready binaries to: %s", dir)

	if err := os.RemoveAll(dir); err != nil {
		return bundle, fmt.Errorf("failed to clear release directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return bundle, fmt.Errorf("failed to create release directory: %w", err)
	}

	for _, name := range outputs {
		if err := ctx.Err(); err != nil {
			return bundle, err
		}

		src := filepath.Join(p.OutputDir, name)
		if !fileutil.FileExists(filepath.Join(src, FirmwareFile)) {
			log.Warn("output has no binary, not released", "output", name)
			continue
		}

		dst := filepath.Join(dir, name)
		if err := fileutil.CopyFile(filepath.Join(src, FirmwareFile), filepath.Join(dst, FirmwareFile)); err != nil {
			return bundle, fmt.Errorf("failed to copy %s binary: %w", name, err)
		}
		if fileutil.FileExists(filepath.Join(src, VersionFile)) {
			if err := fileutil.CopyFile(filepath.Join(src, VersionFile), filepath.Join(dst, VersionFile)); err != nil {
				return bundle, fmt.Errorf("failed to copy %s version file: %w", name, err)
			}
		}
		bundle.Outputs = append(bundle.Outputs, name)
	}

	if p.SupportDir != "" && fileutil.DirExists(p.SupportDir) {
		target := filepath.Join(dir, filepath.Base(p.SupportDir))
		if err := fileutil.ReplaceDir(p.SupportDir, target); err != nil {
			return bundle, fmt.Errorf("failed to copy support files: %w", err)
		}
		bundle.Support = true
		out.Success("Flash files (bootloader/partitions) copied.")
	} else {
		log.Warn("support directory not found", "path", p.SupportDir)
	}

	for _, candidate := range NotesCandidates(version, p.NotesDirs...) {
		if !fileutil.FileExists(candidate) {
			continue
		}
		if err := fileutil.CopyFile(candidate, filepath.Join(dir, NotesFile)); err != nil {
			return bundle, fmt.Errorf("failed to copy release notes: %w", err)
		}
		bundle.Notes = candidate
		out.Success("Release Notes copied to: %s", filepath.Join(dir, NotesFile))
		break
	}
	if bundle.Notes == "" {
		log.Warn("no release notes found", "version", version, "dirs", p.NotesDirs)
		out.Warn("No release notes found for %s", DirName(version))
	}

	out.Success("Release %s package complete.", DirName(version))

	archive := filepath.Join(p.Root, p.ArchiveName(version))
	out.Step("Creating release archive: %s", filepath.Base(archive))
	size, err := WriteArchive(p.ArchiveFormat, dir, archive)
	if err != nil {
		bundle.ArchiveErr = err
		log.Error("archive creation failed", "archive", archive, "error", err)
		out.Error("Failed to create archive: %v", err)
	} else {
		bundle.Archive = archive
		bundle.ArchiveSize = size
		log.Info("release archive created", "archive", archive, "size_bytes", size)
		out.Success("Release archive created: %s (%.2f MB)", filepath.Base(archive), float64(size)/(1024*1024))
	}

	if err := p.updateLatest(dir); err != nil {
		log.Warn("failed to update latest link", "error", err)
	}

	return bundle, nil
}

func (p *Packager) updateLatest(dir string) error {
	if _, err := security.WithinDir(p.Root, dir); err != nil {
		return err
	}
	return fileutil.PointLink(filepath.Join(p.Root, LatestLink), filepath.Base(dir))
}
