package host

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxExtractedFileSize caps a single file inside a translation archive (64 MB).
const maxExtractedFileSize = 64 << 20

// Filesystem is the file manipulation surface used by the installer.
type Filesystem interface {
	Exists(path string) bool
	MkdirAll(path string) error
	Copy(src, dst string) error
	Delete(path string) error
	Unzip(ctx context.Context, archive, dest string) error
}

// FilesystemProvider lazily initializes a Filesystem. Initialization may fail,
// for instance when the languages directory is not writable.
type FilesystemProvider func(ctx context.Context) (Filesystem, error)

// OSFilesystem operates on the local disk.
type OSFilesystem struct{}

// OSFilesystemProvider returns a provider that checks root is writable before
// handing out an OSFilesystem.
func OSFilesystemProvider(root string) FilesystemProvider {
	return func(context.Context) (Filesystem, error) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("preparing %s: %w", root, err)
		}
		probe, err := os.CreateTemp(root, ".langpacks-probe-*")
		if err != nil {
			return nil, fmt.Errorf("%s is not writable: %w", root, err)
		}
		name := probe.Name()
		_ = probe.Close()
		_ = os.Remove(name)
		return OSFilesystem{}, nil
	}
}

// Exists reports whether path exists.
func (OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MkdirAll creates path and any missing parents.
func (OSFilesystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Copy copies src to dst, replacing dst.
func (OSFilesystem) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}

// Delete removes path. A missing path is not an error.
func (OSFilesystem) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Unzip extracts archive into dest. Entries escaping dest are rejected.
func (OSFilesystem) Unzip(ctx context.Context, archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxExtractedFileSize+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if n > maxExtractedFileSize {
		return fmt.Errorf("archive entry %s exceeds %d bytes", f.Name, maxExtractedFileSize)
	}
	return nil
}
