// Package catalog holds the static table of upstream toolchain releases and
// the per-platform archives each release ships.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/config/validate"
	"gopkg.in/yaml.v3"
)

//go:embed data/releases.yml
var defaultReleases []byte

// Platform keys identify one (OS family, CPU architecture) archive variant.
const (
	PlatformWin32       = "win32"
	PlatformMacX86_64   = "mac_x86_64"
	PlatformMacArm64    = "mac_arm64"
	PlatformLinuxX86_64 = "linux_x86_64"
	PlatformLinuxArm64  = "linux_aarch64"
)

// Archive formats, named after the file suffix that selects them.
const (
	FormatZip    = "zip"
	FormatTarBz2 = "tar.bz2"
	FormatTarXz  = "tar.xz"
)

var (
	// ErrUnknownRelease is returned for a release identifier not in the catalog.
	ErrUnknownRelease = errors.New("unknown release")

	// ErrPlatformNotAvailable is returned when a release has no archive for a platform key.
	ErrPlatformNotAvailable = errors.New("platform not available for release")

	// ErrUnsupportedArchiveFormat is returned for file names with an unknown suffix.
	ErrUnsupportedArchiveFormat = errors.New("unsupported archive format")

	// ErrInvalidCatalog is returned when catalog data fails validation.
	ErrInvalidCatalog = errors.New("invalid release catalog")
)

// ArtifactDescriptor describes one downloadable archive.
type ArtifactDescriptor struct {
	URL          string `yaml:"url"`
	MD5          string `yaml:"md5"`
	PlatformTag  string `yaml:"platform_tag"` // wheel platform tag, e.g. manylinux_2_28_x86_64
	SignatureURL string `yaml:"signature_url,omitempty"`
	// Headerless marks archives whose entries are not under a single top-level folder.
	Headerless bool `yaml:"headerless,omitempty"`
}

// FileName is the last path element of the descriptor URL.
func (d ArtifactDescriptor) FileName() string {
	return path.Base(d.URL)
}

// Format returns the archive format implied by the URL suffix.
func (d ArtifactDescriptor) Format() (string, error) {
	return ArchiveFormat(d.URL)
}

// Release is one upstream toolchain release.
type Release struct {
	Name         string
	ShortVersion string
	platformKeys []string
	artifacts    map[string]ArtifactDescriptor
}

// PlatformKeys returns the release's platform keys in catalog order.
func (r *Release) PlatformKeys() []string {
	return append([]string(nil), r.platformKeys...)
}

// Descriptor returns the archive for key.
func (r *Release) Descriptor(key string) (ArtifactDescriptor, bool) {
	d, ok := r.artifacts[key]
	return d, ok
}

// Catalog is an ordered set of releases; the first one is the latest.
type Catalog struct {
	order    []string
	releases map[string]*Release
}

type fileRelease struct {
	Name         string         `yaml:"name"`
	ShortVersion string         `yaml:"short_version"`
	Platforms    []filePlatform `yaml:"platforms"`
}

type filePlatform struct {
	Key                string `yaml:"key"`
	ArtifactDescriptor `yaml:",inline"`
}

type catalogFile struct {
	Releases []fileRelease `yaml:"releases"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultReleases))
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(file string) (*Catalog, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", file, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if err := validate.ValidateCatalogYAML(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	c := &Catalog{releases: make(map[string]*Release, len(cf.Releases))}
	for _, fr := range cf.Releases {
		if _, dup := c.releases[fr.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate release %q", ErrInvalidCatalog, fr.Name)
		}
		rel := &Release{
			Name:         fr.Name,
			ShortVersion: fr.ShortVersion,
			artifacts:    make(map[string]ArtifactDescriptor, len(fr.Platforms)),
		}
		for _, fp := range fr.Platforms {
			if _, dup := rel.artifacts[fp.Key]; dup {
				return nil, fmt.Errorf("%w: release %q lists platform %q twice", ErrInvalidCatalog, fr.Name, fp.Key)
			}
			if _, err := fp.Format(); err != nil {
				return nil, fmt.Errorf("%w: release %q platform %q: %w", ErrInvalidCatalog, fr.Name, fp.Key, err)
			}
			rel.platformKeys = append(rel.platformKeys, fp.Key)
			rel.artifacts[fp.Key] = fp.ArtifactDescriptor
		}
		c.order = append(c.order, fr.Name)
		c.releases[fr.Name] = rel
	}
	return c, nil
}

// Names returns every release identifier, latest first.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Latest returns the most recently added release identifier.
func (c *Catalog) Latest() string {
	return c.order[0]
}

// Release looks up a release by identifier.
func (c *Catalog) Release(id string) (*Release, error) {
	rel, ok := c.releases[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelease, id)
	}
	return rel, nil
}

// ShortVersion returns the upstream short version of a release, e.g. "14.2".
func (c *Catalog) ShortVersion(id string) (string, error) {
	rel, err := c.Release(id)
	if err != nil {
		return "", err
	}
	return rel.ShortVersion, nil
}

// Descriptor returns the archive of release id for platform key.
func (c *Catalog) Descriptor(id, key string) (ArtifactDescriptor, error) {
	rel, err := c.Release(id)
	if err != nil {
		return ArtifactDescriptor{}, err
	}
	d, ok := rel.Descriptor(key)
	if !ok {
		return ArtifactDescriptor{}, fmt.Errorf("%w: %s has no %s archive", ErrPlatformNotAvailable, id, key)
	}
	return d, nil
}

// HeaderlessArchives returns the file names of archives flagged as lacking a
// top-level folder.
func (c *Catalog) HeaderlessArchives() []string {
	var names []string
	for _, id := range c.order {
		rel := c.releases[id]
		for _, key := range rel.platformKeys {
			if d := rel.artifacts[key]; d.Headerless {
				names = append(names, d.FileName())
			}
		}
	}
	return names
}

// ArchiveFormat maps a file name or URL to its archive format.
func ArchiveFormat(name string) (string, error) {
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(name, ".tar.bz2"):
		return FormatTarBz2, nil
	case strings.HasSuffix(name, ".tar.xz"):
		return FormatTarXz, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchiveFormat, name)
	}
}
