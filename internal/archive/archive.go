// Package archive extracts downloaded toolchain archives and locates the
// top-level toolchain folder they produce.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/catalog"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
)

var (
	ErrDestinationNotFound     = errors.New("unpack destination directory does not exist")
	ErrArchiveNotFound         = errors.New("archive not found")
	ErrExtractedFolderExists   = errors.New("extracted toolchain folder already exists")
	ErrExtractedFolderNotFound = errors.New("extracted toolchain folder not found")
	ErrUnsafeArchivePath       = errors.New("archive entry escapes the destination directory")
	// ErrUnsupportedArchiveFormat is catalog.ErrUnsupportedArchiveFormat.
	ErrUnsupportedArchiveFormat = catalog.ErrUnsupportedArchiveFormat
)

// Options tunes Unpack.
type Options struct {
	// AlternatePrefixes are extra top-level folder name prefixes, for archives
	// whose folder is not named after the file.
	AlternatePrefixes []string
	// Headerless lists zip file names whose entries have no top-level folder.
	Headerless []string
}

// Unpack extracts archivePath into destDir and returns the path of the
// toolchain folder it created. It refuses to run when a matching folder is
// already present.
func Unpack(archivePath, destDir string, opts Options) (string, error) {
	log := logger.Logger()

	if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDestinationNotFound, destDir)
	}
	if info, err := os.Stat(archivePath); err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, archivePath)
	}

	prefixes, err := expectedPrefixes(archivePath, destDir, opts.AlternatePrefixes)
	if err != nil {
		return "", err
	}
	if existing, err := findExtracted(destDir, prefixes); err != nil {
		return "", err
	} else if existing != "" {
		return "", fmt.Errorf("%w: %s", ErrExtractedFolderExists, existing)
	}

	format, err := catalog.ArchiveFormat(archivePath)
	if err != nil {
		return "", err
	}

	log.Infof("unpacking %s into %s", filepath.Base(archivePath), destDir)
	switch format {
	case catalog.FormatZip:
		target := destDir
		name := filepath.Base(archivePath)
		if slices.Contains(opts.Headerless, name) {
			target = filepath.Join(destDir, strings.TrimSuffix(name, ".zip"))
			if err := os.Mkdir(target, 0o755); err != nil {
				return "", fmt.Errorf("creating top-level folder for %s: %w", name, err)
			}
			log.Debugf("%s has no top-level folder, extracting into %s", name, target)
		}
		err = extractZip(archivePath, target)
	case catalog.FormatTarBz2:
		err = extractTarBz2(archivePath, destDir)
	case catalog.FormatTarXz:
		err = extractTarXz(archivePath, destDir)
	}
	if err != nil {
		return "", fmt.Errorf("unpacking %s: %w", archivePath, err)
	}

	dir, err := findExtracted(destDir, prefixes)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", fmt.Errorf("%w: no entry of %s starts with any of %v", ErrExtractedFolderNotFound, destDir, prefixes)
	}
	log.Debugf("toolchain unpacked to %s", dir)
	return dir, nil
}

// expectedPrefixes returns the resolved path prefixes an extracted folder may
// start with: the first '-' token of the archive name, plus alternates.
func expectedPrefixes(archivePath, destDir string, alternates []string) ([]string, error) {
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", destDir, err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	token, _, _ := strings.Cut(filepath.Base(archivePath), "-")
	prefixes := []string{filepath.Join(root, token)}
	for _, alt := range alternates {
		if alt == "" {
			continue
		}
		// Join drops trailing separators, so keep the raw suffix.
		prefixes = append(prefixes, root+string(filepath.Separator)+alt)
	}
	return prefixes, nil
}

// findExtracted returns the first entry of dir, in name order, whose
// resolved path starts with one of prefixes, or "" when none does.
func findExtracted(dir string, prefixes []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			resolved = p
		}
		if resolved, err = filepath.Abs(resolved); err != nil {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(resolved, prefix) {
				return resolved, nil
			}
		}
	}
	return "", nil
}

// safeJoin joins an archive entry name onto dest, rejecting names that
// would land outside it.
func safeJoin(dest, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) || strings.HasPrefix(name, string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	target := filepath.Join(dest, name)
	if !within(dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeArchivePath, name)
	}
	return target, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
