// Package assembler turns an unpacked toolchain into a Python project: one
// launcher module per executable plus pyproject.toml and MANIFEST.in.
package assembler

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/open-edge-platform/toolchain-packager/internal/config"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/pelletier/go-toml/v2"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template override file names. The project ones are looked up in the
// project directory, the launcher one in the package directory.
const (
	ProjectTemplateFile  = "pyproject.toml.txt"
	ManifestTemplateFile = "MANIFEST.in.txt"
	LauncherTemplateFile = "executable_launcher.py.txt"
)

var (
	ErrInvalidLayout       = errors.New("invalid project layout")
	ErrNoExecutablesFound  = errors.New("no executables found in the toolchain bin folder")
	ErrDuplicateCommand    = errors.New("executables map to the same launcher name")
	ErrProjectFileNotFound = errors.New("pyproject.toml not found")
)

var nonIdentifier = regexp.MustCompile(`[^0-9a-zA-Z_]`)

// Executable is one binary of the toolchain bin folder and the launcher that
// exposes it.
type Executable struct {
	Binary     string // file name in bin/, e.g. arm-none-eabi-gcc.exe
	Command    string // console script name, Binary without .exe
	Identifier string // launcher module and function name, e.g. run_gcc
}

// Project is the part of pyproject.toml the packager reads back.
type Project struct {
	Name    string            `toml:"name"`
	Version string            `toml:"version"`
	Scripts map[string]string `toml:"scripts"`
}

type projectData struct {
	ProjectName string
	PackageName string
	Version     string
	Executables []Executable
}

type manifestData struct {
	ToolchainPath string
}

type launcherData struct {
	Executable
	ToolchainFolder string
}

// PackageVersion joins the upstream short version and the packaging revision.
func PackageVersion(shortVersion string, naming config.Naming) string {
	return shortVersion + naming.VersionSeparator + naming.PackagingRevision
}

// LauncherName derives the launcher identifier for a toolchain binary.
func LauncherName(binary string, naming config.Naming) string {
	name := naming.LauncherPrefix + binary
	if naming.BinaryPrefix != "" && strings.HasPrefix(binary, naming.BinaryPrefix) {
		name = naming.LauncherPrefix + strings.TrimPrefix(binary, naming.BinaryPrefix)
	}
	name = strings.ReplaceAll(name, ".exe", "")
	return nonIdentifier.ReplaceAllString(name, "_")
}

// Executables lists the files of toolchainDir/bin sorted by name. A missing
// bin folder yields ErrNoExecutablesFound.
func Executables(toolchainDir string, naming config.Naming) ([]Executable, error) {
	binDir := filepath.Join(toolchainDir, "bin")
	entries, err := os.ReadDir(binDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("listing %s: %w", binDir, err)
	}

	var exes []Executable
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		bin := entry.Name()
		id := LauncherName(bin, naming)
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s and %s both become %s", ErrDuplicateCommand, other, bin, id)
		}
		seen[id] = bin
		exes = append(exes, Executable{
			Binary:     bin,
			Command:    strings.ReplaceAll(bin, ".exe", ""),
			Identifier: id,
		})
	}
	if len(exes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutablesFound, binDir)
	}
	sort.Slice(exes, func(i, j int) bool { return exes[i].Binary < exes[j].Binary })
	return exes, nil
}

// Assemble writes a launcher per executable into packageDir and renders the
// project descriptor and manifest into projectDir. toolchainDir must be
// inside packageDir, which must be inside projectDir.
func Assemble(projectDir, packageDir, toolchainDir, version string, naming config.Naming) ([]Executable, error) {
	log := logger.Logger()

	project, pkg, toolchain, err := checkLayout(projectDir, packageDir, toolchainDir)
	if err != nil {
		return nil, err
	}
	toolchainRel, _ := filepath.Rel(pkg, toolchain)
	toolchainRel = filepath.ToSlash(toolchainRel)
	packageRel, _ := filepath.Rel(project, pkg)
	packageRel = filepath.ToSlash(packageRel)

	exes, err := Executables(toolchain, naming)
	if err != nil {
		return nil, err
	}
	log.Infof("found %d executables in %s", len(exes), filepath.Join(toolchain, "bin"))

	launcherTmpl, err := loadTemplate(filepath.Join(pkg, LauncherTemplateFile), "executable_launcher.py.tmpl")
	if err != nil {
		return nil, err
	}
	for _, exe := range exes {
		log.Debugf("- %s (%s.py)", exe.Binary, exe.Identifier)
		data := launcherData{Executable: exe, ToolchainFolder: toolchainRel}
		if err := render(launcherTmpl, filepath.Join(pkg, exe.Identifier+".py"), data); err != nil {
			return nil, err
		}
	}

	projectTmpl, err := loadTemplate(filepath.Join(project, ProjectTemplateFile), "pyproject.toml.tmpl")
	if err != nil {
		return nil, err
	}
	pd := projectData{
		ProjectName: naming.ProjectName,
		PackageName: naming.PackageName,
		Version:     version,
		Executables: exes,
	}
	if err := render(projectTmpl, filepath.Join(project, "pyproject.toml"), pd); err != nil {
		return nil, err
	}

	manifestTmpl, err := loadTemplate(filepath.Join(project, ManifestTemplateFile), "MANIFEST.in.tmpl")
	if err != nil {
		return nil, err
	}
	md := manifestData{ToolchainPath: packageRel + "/" + toolchainRel}
	if err := render(manifestTmpl, filepath.Join(project, "MANIFEST.in"), md); err != nil {
		return nil, err
	}

	log.Infof("assembled %s %s in %s", naming.ProjectName, version, project)
	return exes, nil
}

// ReadProject decodes the [project] table of projectDir/pyproject.toml.
func ReadProject(projectDir string) (*Project, error) {
	file := filepath.Join(projectDir, "pyproject.toml")
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrProjectFileNotFound, file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	var doc struct {
		Project Project `toml:"project"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	if doc.Project.Name == "" || doc.Project.Version == "" {
		return nil, fmt.Errorf("%s: project name and version are required", file)
	}
	return &doc.Project, nil
}

func checkLayout(projectDir, packageDir, toolchainDir string) (string, string, string, error) {
	var resolved [3]string
	for i, dir := range []string{projectDir, packageDir, toolchainDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return "", "", "", fmt.Errorf("%w: %s is not a directory", ErrInvalidLayout, dir)
		}
		p, err := filepath.EvalSymlinks(dir)
		if err == nil {
			p, err = filepath.Abs(p)
		}
		if err != nil {
			return "", "", "", fmt.Errorf("resolving %s: %w", dir, err)
		}
		resolved[i] = p
	}
	project, pkg, toolchain := resolved[0], resolved[1], resolved[2]
	if !within(project, pkg) {
		return "", "", "", fmt.Errorf("%w: package folder %s is not inside %s", ErrInvalidLayout, pkg, project)
	}
	if !within(pkg, toolchain) {
		return "", "", "", fmt.Errorf("%w: toolchain folder %s is not inside %s", ErrInvalidLayout, toolchain, pkg)
	}
	return project, pkg, toolchain, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// loadTemplate parses override when it exists, else the embedded default.
func loadTemplate(override, name string) (*template.Template, error) {
	data, err := os.ReadFile(override)
	switch {
	case err == nil:
		logger.Logger().Debugf("using template %s", override)
	case errors.Is(err, os.ErrNotExist):
		if data, err = templateFS.ReadFile("templates/" + name); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("reading template %s: %w", override, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, file string, data any) error {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("creating %s: %w", file, err)
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", file, err)
	}
	return f.Close()
}
