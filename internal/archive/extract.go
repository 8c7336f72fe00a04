package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
)

func extractZip(archivePath, dest string) error {
	root, err := newExtractRoot(dest)
	if err != nil {
		return err
	}
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := root.path(file.Name)
		if err != nil {
			return err
		}
		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case mode&os.ModeSymlink != 0:
			rc, err := file.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", file.Name, err)
			}
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("read zip entry %s: %w", file.Name, err)
			}
			if err := root.symlink(target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := file.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", file.Name, err)
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func extractTarBz2(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	return untarStream(bzip2.NewReader(file), dest)
}

func extractTarXz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	xr, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("xz reader: %w", err)
	}
	return untarStream(xr, dest)
}

func untarStream(r io.Reader, dest string) error {
	root, err := newExtractRoot(dest)
	if err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		target, err := root.path(header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := root.symlink(target, header.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := root.path(header.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare link %s: %w", target, err)
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("create hard link %s: %w", target, err)
			}
		default:
			// Ignore other entry types.
		}
	}
}

// writeFile creates target with perm minus group and other write bits. An
// existing symlink at target is replaced, not followed.
func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare file %s: %w", target, err)
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace symlink %s: %w", target, err)
		}
	}
	perm &^= 0o022
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	// umask may have dropped bits from the requested mode
	return os.Chmod(target, perm)
}

// extractRoot confines the writes of one extraction to a resolved directory.
type extractRoot struct {
	dir string
}

func newExtractRoot(dest string) (*extractRoot, error) {
	dir, err := filepath.EvalSymlinks(dest)
	if err == nil {
		dir, err = filepath.Abs(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dest, err)
	}
	return &extractRoot{dir: dir}, nil
}

// path returns where entry name lands on disk. Symlinks extracted earlier
// along its parent folders are followed and must stay inside the root.
func (r *extractRoot) path(name string) (string, error) {
	target, err := safeJoin(r.dir, name)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.dir, target)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	if rel == "." {
		return r.dir, nil
	}
	parent, err := resolveWithin(r.dir, r.dir, filepath.Dir(rel))
	if err != nil {
		return "", fmt.Errorf("entry %s: %w", name, err)
	}
	return filepath.Join(parent, filepath.Base(rel)), nil
}

// symlink creates target pointing to link after checking that link,
// resolved from the folder of target, stays inside the root.
func (r *extractRoot) symlink(target, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafeArchivePath, target, link)
	}
	if _, err := resolveWithin(r.dir, filepath.Dir(target), link); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", target, link, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare link %s: %w", target, err)
	}
	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

// resolveWithin walks rel from base one element at a time, following the
// symlinks that exist on disk, and fails unless the result is inside root.
// Elements after the first missing one are taken literally and must not
// contain "..".
func resolveWithin(root, base, rel string) (string, error) {
	cur := base
	parts := strings.Split(filepath.ToSlash(rel), "/")
walk:
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			rest := parts[i:]
			if slices.Contains(rest, "..") {
				return "", fmt.Errorf("%w: %s climbs out of missing folder %s", ErrUnsafeArchivePath, rel, next)
			}
			cur = filepath.Join(append([]string{cur}, rest...)...)
			break walk
		case err != nil:
			return "", fmt.Errorf("resolving %s: %w", next, err)
		case info.Mode()&os.ModeSymlink != 0:
			resolved, err := filepath.EvalSymlinks(next)
			if err != nil {
				return "", fmt.Errorf("%w: cannot resolve symlink %s: %v", ErrUnsafeArchivePath, next, err)
			}
			cur = resolved
		default:
			cur = next
		}
	}
	if !within(root, cur) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrUnsafeArchivePath, rel, cur)
	}
	return cur, nil
}
