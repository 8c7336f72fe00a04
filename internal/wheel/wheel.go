// Package wheel builds and tags the Python wheel of an assembled project and
// writes the side files published next to it.
package wheel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/assembler"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/shell"
)

const (
	ChecksumSuffix = ".sha256"
	MetadataSuffix = ".metadata"
)

var (
	ErrWheelExists          = errors.New("wheel already exists")
	ErrWheelNotCreated      = errors.New("wheel was not created")
	ErrMetadataNotFound     = errors.New("package metadata not found")
	ErrPythonNotFound       = errors.New("python interpreter not found")
	ErrWheelNotFound        = errors.New("wheel not found")
	ErrSdistExists          = errors.New("source distribution already exists")
	ErrSdistNotCreated      = errors.New("source distribution was not created")
	ErrSdistProjectNotFound = errors.New("source distribution project not found")
)

// ExecFunc runs a command inside dir.
type ExecFunc func(ctx context.Context, dir, name string, args ...string) (string, error)

// Builder drives pip and the wheel tool.
type Builder struct {
	Python string
	Exec   ExecFunc
}

// NewBuilder returns a Builder that runs python through the shell package.
func NewBuilder(python string) *Builder {
	return &Builder{Python: python, Exec: shell.ExecCmdWithStream}
}

// FileName returns the wheel file name for a project, version and platform tag.
func FileName(project, version, platformTag string) string {
	return fmt.Sprintf("%s-%s-py3-none-%s.whl", strings.ReplaceAll(project, "-", "_"), version, platformTag)
}

// Build runs pip wheel in projectDir, retags the pure wheel with platformTag
// and returns the path of the tagged wheel in distDir.
func (b *Builder) Build(ctx context.Context, projectDir, distDir, platformTag string) (string, error) {
	log := logger.Logger()

	if b.Exec == nil {
		b.Exec = shell.ExecCmdWithStream
	}
	if filepath.Base(b.Python) == b.Python && !shell.IsCommandExist(b.Python) {
		return "", fmt.Errorf("%w: %s", ErrPythonNotFound, b.Python)
	}

	project, err := assembler.ReadProject(projectDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", distDir, err)
	}
	distDir, err = filepath.Abs(distDir)
	if err != nil {
		return "", err
	}

	pure := filepath.Join(distDir, FileName(project.Name, project.Version, "any"))
	tagged := filepath.Join(distDir, FileName(project.Name, project.Version, platformTag))
	for _, p := range []string{pure, tagged} {
		if _, err := os.Stat(p); err == nil {
			return "", fmt.Errorf("%w: %s", ErrWheelExists, p)
		}
	}

	log.Infof("building wheel for %s %s", project.Name, project.Version)
	if _, err := b.Exec(ctx, projectDir, b.Python, "-m", "pip", "wheel", "--wheel-dir", distDir, "."); err != nil {
		return "", err
	}
	if _, err := os.Stat(pure); err != nil {
		return "", fmt.Errorf("%w: %s", ErrWheelNotCreated, pure)
	}

	if platformTag == "any" {
		return pure, nil
	}
	if _, err := b.Exec(ctx, distDir, b.Python, "-m", "wheel", "tags", "--platform-tag", platformTag, filepath.Base(pure)); err != nil {
		return "", err
	}
	if err := os.Remove(pure); err != nil {
		return "", fmt.Errorf("removing untagged wheel: %w", err)
	}
	if _, err := os.Stat(tagged); err != nil {
		return "", fmt.Errorf("%w: %s", ErrWheelNotCreated, tagged)
	}
	log.Infof("wheel created: %s", tagged)
	return tagged, nil
}

// SdistFileName returns the source distribution name matching a wheel file
// name: everything before "-py3-none-", plus ".tar.gz".
func SdistFileName(wheelName string) string {
	name, _, _ := strings.Cut(filepath.Base(wheelName), "-py3-none-")
	return name + ".tar.gz"
}

// BuildSdist runs python -m build --sdist in sdistProjectDir, handing
// wheelPath to the build backend as the source_wheel config setting, and
// returns the path of the archive written to distDir.
func (b *Builder) BuildSdist(ctx context.Context, sdistProjectDir, distDir, wheelPath string) (string, error) {
	log := logger.Logger()

	if b.Exec == nil {
		b.Exec = shell.ExecCmdWithStream
	}
	if info, err := os.Stat(sdistProjectDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrSdistProjectNotFound, sdistProjectDir)
	}
	if info, err := os.Stat(wheelPath); err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrWheelNotFound, wheelPath)
	}
	if filepath.Base(b.Python) == b.Python && !shell.IsCommandExist(b.Python) {
		return "", fmt.Errorf("%w: %s", ErrPythonNotFound, b.Python)
	}

	wheelPath, err := filepath.Abs(wheelPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", distDir, err)
	}
	if distDir, err = filepath.Abs(distDir); err != nil {
		return "", err
	}
	sdist := filepath.Join(distDir, SdistFileName(wheelPath))
	if _, err := os.Stat(sdist); err == nil {
		return "", fmt.Errorf("%w: %s", ErrSdistExists, sdist)
	}

	log.Infof("building source distribution from %s", filepath.Base(wheelPath))
	if _, err := b.Exec(ctx, sdistProjectDir, b.Python, "-m", "build", "--sdist",
		"--outdir", distDir, "--config-setting", "source_wheel="+wheelPath); err != nil {
		return "", err
	}
	if _, err := os.Stat(sdist); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSdistNotCreated, sdist)
	}
	log.Infof("source distribution created: %s", sdist)
	return sdist, nil
}

// FileSHA256 returns the hex sha256 digest of file.
func FileSHA256(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", file, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksumFile writes "<hex> <basename>\n" to file + ".sha256".
func WriteChecksumFile(file string) (string, error) {
	sum, err := FileSHA256(file)
	if err != nil {
		return "", err
	}
	out := file + ChecksumSuffix
	line := fmt.Sprintf("%s %s\n", sum, filepath.Base(file))
	if err := os.WriteFile(out, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", out, err)
	}
	return out, nil
}

// ReadPackageMetadata returns the PKG-INFO of the *.egg-info folder next to
// packageDir, as left behind by the wheel build.
func ReadPackageMetadata(packageDir string) (string, error) {
	parent := filepath.Dir(filepath.Clean(packageDir))
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", parent, err)
	}
	var eggInfo []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".egg-info") {
			eggInfo = append(eggInfo, e.Name())
		}
	}
	if len(eggInfo) == 0 {
		return "", fmt.Errorf("%w: no .egg-info folder in %s", ErrMetadataNotFound, parent)
	}
	sort.Strings(eggInfo)

	file := filepath.Join(parent, eggInfo[0], "PKG-INFO")
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrMetadataNotFound, file)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}
	return string(data), nil
}

// WriteMetadataFile writes metadata to wheelPath + ".metadata".
func WriteMetadataFile(wheelPath, metadata string) (string, error) {
	out := wheelPath + MetadataSuffix
	if err := os.WriteFile(out, []byte(metadata), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", out, err)
	}
	return out, nil
}
