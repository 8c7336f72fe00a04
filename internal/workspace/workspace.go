// Package workspace knows where a packaging run puts its files and how to
// return the project to a pristine state between runs.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/config"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
)

// Toolchain folder and archive name prefixes removed by Clean, in addition
// to the configured alternate prefixes.
var toolchainPrefixes = []string{"gcc-arm-", "arm-gnu-toolchain"}

var archiveSuffixes = []string{".zip", ".tar.bz2", ".tar.xz"}

// Layout is the set of directories a packaging run touches.
type Layout struct {
	ProjectDir  string
	PackageDir  string
	DownloadDir string
	DistDir     string
	// ToolchainPrefixes are extra name prefixes of extracted toolchain folders.
	ToolchainPrefixes []string
}

// LayoutFromConfig resolves the directories of cfg.
func LayoutFromConfig(cfg *config.GlobalConfig) (Layout, error) {
	h := config.NewConfigHelpers(cfg)
	var l Layout
	var err error
	if l.ProjectDir, err = h.ProjectDir(); err != nil {
		return l, err
	}
	if l.PackageDir, err = h.PackageDir(); err != nil {
		return l, err
	}
	if l.DownloadDir, err = h.DownloadDir(); err != nil {
		return l, err
	}
	if l.DistDir, err = h.DistDir(); err != nil {
		return l, err
	}
	l.ToolchainPrefixes = cfg.Archive.AlternatePrefixes
	return l, nil
}

// Check fails unless the project and package directories exist.
func (l Layout) Check() error {
	for _, dir := range []string{l.ProjectDir, l.PackageDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("project directory not found: %s", dir)
		}
	}
	return nil
}

// Clean removes everything a previous run generated: project descriptor and
// manifest, build and egg-info folders, launchers, __pycache__ folders,
// untagged wheels, downloaded archives and extracted toolchains. Entries
// inside dot-directories are left alone. It returns the removed paths.
func Clean(l Layout, naming config.Naming) ([]string, error) {
	log := logger.Logger()
	var removed []string

	remove := func(p string) error {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("removing %s: %w", p, err)
		}
		log.Debugf("deleted %s", p)
		removed = append(removed, p)
		return nil
	}

	for _, name := range []string{"pyproject.toml", "MANIFEST.in", "build"} {
		p := filepath.Join(l.ProjectDir, name)
		if _, err := os.Lstat(p); err == nil {
			if err := remove(p); err != nil {
				return removed, err
			}
		}
	}

	prefixes := append(append([]string(nil), toolchainPrefixes...), l.ToolchainPrefixes...)
	launcherPrefix := naming.LauncherPrefix

	err := filepath.WalkDir(l.ProjectDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == l.ProjectDir {
				return filepath.SkipAll
			}
			return err
		}
		name := d.Name()
		if p != l.ProjectDir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case d.IsDir() && (name == "__pycache__" || strings.HasSuffix(name, ".egg-info")):
		case d.IsDir() && inDir(l.PackageDir, p) && hasAnyPrefix(name, prefixes):
		case !d.IsDir() && inDir(l.PackageDir, p) && strings.HasPrefix(name, launcherPrefix) && strings.HasSuffix(name, ".py"):
		case !d.IsDir() && inDir(l.DistDir, p) && strings.HasSuffix(name, "-py3-none-any.whl"):
		default:
			return nil
		}
		if err := remove(p); err != nil {
			return err
		}
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	entries, err := os.ReadDir(l.DownloadDir)
	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("listing %s: %w", l.DownloadDir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !hasAnyPrefix(name, prefixes) || !hasAnySuffix(name, archiveSuffixes) {
			continue
		}
		if err := remove(filepath.Join(l.DownloadDir, name)); err != nil {
			return removed, err
		}
	}

	sort.Strings(removed)
	return removed, nil
}

// inDir reports whether p is a descendant of dir.
func inDir(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
