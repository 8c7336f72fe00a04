// Package resolver maps a (release, OS, CPU architecture) selection onto the
// catalog archives that satisfy it.
package resolver

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/catalog"
)

const (
	// Latest selects the first release in the catalog.
	Latest = "latest"
	// All selects every platform of a release when given for both OS and arch.
	All = "all"
)

// OS families.
const (
	OSMac     = "macos"
	OSWindows = "windows"
	OSLinux   = "linux"
)

// Normalized CPU architectures.
const (
	ArchX86_64 = "x86_64"
	ArchArm    = "arm"
)

var (
	// ErrUnknownRelease is catalog.ErrUnknownRelease, re-exported for callers of Resolve.
	ErrUnknownRelease = catalog.ErrUnknownRelease
	// ErrPlatformNotAvailable is catalog.ErrPlatformNotAvailable, re-exported for callers of Resolve.
	ErrPlatformNotAvailable = catalog.ErrPlatformNotAvailable

	ErrInvalidPlatformSelector        = errors.New("OS and architecture must both be 'all', not just one")
	ErrUnsupportedArchitecture        = errors.New("unsupported CPU architecture")
	ErrUnsupportedOS                  = errors.New("unsupported operating system")
	ErrUnsupportedPlatformCombination = errors.New("unsupported OS and architecture combination")
)

var osAliases = map[string]string{
	"darwin": OSMac, "macos": OSMac, "macosx": OSMac, "osx": OSMac, "mac": OSMac,
	"windows": OSWindows, "win": OSWindows, "win32": OSWindows,
	"linux": OSLinux, "linux2": OSLinux,
}

var archAliases = map[string]string{
	"x86_64": ArchX86_64, "amd64": ArchX86_64, "i386": ArchX86_64, "i686": ArchX86_64,
	"arm64": ArchArm, "aarch64": ArchArm,
}

// platformTable maps (OS family, arch) to a catalog platform key. An empty
// key marks a combination no release can provide.
var platformTable = map[[2]string]string{
	{OSMac, ArchX86_64}:     catalog.PlatformMacX86_64,
	{OSMac, ArchArm}:        catalog.PlatformMacArm64,
	{OSWindows, ArchX86_64}: catalog.PlatformWin32,
	{OSWindows, ArchArm}:    "",
	{OSLinux, ArchX86_64}:   catalog.PlatformLinuxX86_64,
	{OSLinux, ArchArm}:      catalog.PlatformLinuxArm64,
}

// Target is one archive selected for packaging.
type Target struct {
	Release     string
	PlatformKey string
	Descriptor  catalog.ArtifactDescriptor
}

// Resolve selects the archives of releaseID matching the OS and arch hints.
// Nil hints are "absent": both absent selects every platform of the release,
// a single absent hint is filled in from the host.
func Resolve(c *catalog.Catalog, releaseID string, osHint, archHint *string) ([]Target, error) {
	return resolve(c, releaseID, osHint, archHint, HostPlatform)
}

func resolve(c *catalog.Catalog, releaseID string, osHint, archHint *string, host func() (string, string)) ([]Target, error) {
	if releaseID == Latest {
		releaseID = c.Latest()
	}
	rel, err := c.Release(releaseID)
	if err != nil {
		return nil, err
	}

	if osHint == nil && archHint == nil {
		return allTargets(rel), nil
	}

	hostOS, hostArch := host()
	osName, archName := hostOS, hostArch
	if osHint != nil {
		osName = *osHint
	}
	if archHint != nil {
		archName = *archHint
	}
	osName = strings.ToLower(strings.TrimSpace(osName))
	archName = strings.ToLower(strings.TrimSpace(archName))

	switch {
	case osName == All && archName == All:
		return allTargets(rel), nil
	case osName == All || archName == All:
		return nil, ErrInvalidPlatformSelector
	}

	key, err := PlatformKey(osName, archName)
	if err != nil {
		return nil, err
	}
	d, ok := rel.Descriptor(key)
	if !ok {
		return nil, fmt.Errorf("%w: release %s does not have a %s build", ErrPlatformNotAvailable, rel.Name, key)
	}
	return []Target{{Release: rel.Name, PlatformKey: key, Descriptor: d}}, nil
}

// PlatformKey normalizes an OS and architecture pair and maps it to a catalog
// platform key.
func PlatformKey(osName, archName string) (string, error) {
	arch, err := NormalizeArch(archName)
	if err != nil {
		return "", err
	}
	family, err := NormalizeOS(osName)
	if err != nil {
		return "", err
	}
	key := platformTable[[2]string{family, arch}]
	if key == "" {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedPlatformCombination, family, arch)
	}
	return key, nil
}

// NormalizeArch maps an architecture alias to ArchX86_64 or ArchArm.
func NormalizeArch(arch string) (string, error) {
	arch = strings.ToLower(strings.TrimSpace(arch))
	if norm, ok := archAliases[arch]; ok {
		return norm, nil
	}
	if strings.HasPrefix(arch, "armv8") {
		return ArchArm, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedArchitecture, arch)
}

// NormalizeOS maps an OS alias to its family.
func NormalizeOS(osName string) (string, error) {
	osName = strings.ToLower(strings.TrimSpace(osName))
	if family, ok := osAliases[osName]; ok {
		return family, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOS, osName)
}

// HostPlatform returns the OS and architecture of the running process.
func HostPlatform() (string, string) {
	return runtime.GOOS, runtime.GOARCH
}

func allTargets(rel *catalog.Release) []Target {
	keys := rel.PlatformKeys()
	targets := make([]Target, 0, len(keys))
	for _, key := range keys {
		d, _ := rel.Descriptor(key)
		targets = append(targets, Target{Release: rel.Name, PlatformKey: key, Descriptor: d})
	}
	return targets
}
