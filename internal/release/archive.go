package release

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// Archive formats
const (
	FormatZip   = "zip"
	FormatTarXz = "tar.xz"
)

// ArchiveExt returns the file extension for format.
func ArchiveExt(format string) string {
	if format == FormatTarXz {
		return ".tar.xz"
	}
	return ".zip"
}

// WriteArchive packs every regular file under dir into dest. Entry names are
// relative to dir's parent, so they start with dir's base name. The archive
// is written to a temp file and renamed into place.
func WriteArchive(format, dir, dest string) (int64, error) {
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}

	switch format {
	case FormatZip:
		err = writeZip(f, dir)
	case FormatTarXz:
		err = writeTarXz(f, dir)
	default:
		err = fmt.Errorf("unsupported archive format: %s", format)
	}

	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive: %w", cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to stat archive: %w", err)
	}
	return info.Size(), nil
}

// walkFiles calls fn for each regular file under dir with its entry name.
func walkFiles(dir string, fn func(path, name string, info os.FileInfo) error) error {
	parent := filepath.Dir(dir)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		return fn(path, filepath.ToSlash(rel), info)
	})
}

func writeZip(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)

	err := walkFiles(dir, func(path, name string, info os.FileInfo) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		return copyInto(entry, path)
	})
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

func writeTarXz(w io.Writer, dir string) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz stream: %w", err)
	}
	tw := tar.NewWriter(xw)

	err = walkFiles(dir, func(path, name string, info os.FileInfo) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		return copyInto(tw, path)
	})
	if err != nil {
		tw.Close()
		xw.Close()
		return err
	}

	if err := tw.Close(); err != nil {
		xw.Close()
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	return xw.Close()
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
