package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/config/validate"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no --config
// flag is given.
const DefaultConfigFile = "toolchain-packager.yml"

// ErrInvalidConfig is returned for configuration that parses but is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Naming holds the naming conventions of the generated Python project.
type Naming struct {
	ProjectName       string `yaml:"project_name"`       // distribution name, e.g. arm-none-eabi-gcc-toolchain
	PackageName       string `yaml:"package_name"`       // import package, e.g. arm_none_eabi_gcc_toolchain
	BinaryPrefix      string `yaml:"binary_prefix"`      // upstream executable prefix, e.g. arm-none-eabi-
	LauncherPrefix    string `yaml:"launcher_prefix"`    // generated launcher prefix, e.g. run_
	PackagingRevision string `yaml:"packaging_revision"` // this tool's own revision, single increasing integer
	VersionSeparator  string `yaml:"version_separator"`
}

// ArchiveConfig tunes the archive unpacker.
type ArchiveConfig struct {
	// AlternatePrefixes are top-level folder names used by releases whose
	// internal layout differs from their file name.
	AlternatePrefixes []string `yaml:"alternate_prefixes"`
}

// VerifyConfig controls integrity checks of downloaded archives.
type VerifyConfig struct {
	Checksum bool   `yaml:"checksum"`
	Keyring  string `yaml:"keyring"`
}

// IndexConfig controls the static package index generator.
type IndexConfig struct {
	Repository     string `yaml:"repository"`
	Output         string `yaml:"output"`
	RequiresPython string `yaml:"requires_python"`
	TokenEnv       string `yaml:"token_env"`
	APIURL         string `yaml:"api_url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// GlobalConfig is the complete tool configuration.
type GlobalConfig struct {
	WorkDir     string        `yaml:"work_dir"`
	ProjectDir  string        `yaml:"project_dir"`
	DownloadDir string        `yaml:"download_dir"`
	DistDir     string        `yaml:"dist_dir"`
	ReportDir   string        `yaml:"report_dir"`
	CatalogFile string        `yaml:"catalog_file"`
	Python      string        `yaml:"python"`
	UserAgent   string        `yaml:"user_agent"`
	Naming      Naming        `yaml:"naming"`
	Archive     ArchiveConfig `yaml:"archive"`
	Verify      VerifyConfig  `yaml:"verify"`
	Index       IndexConfig   `yaml:"index"`
	Logging     LoggingConfig `yaml:"logging"`
}

// DefaultNaming returns the naming used for the Arm GNU toolchain package.
func DefaultNaming() Naming {
	return Naming{
		ProjectName:       "arm-none-eabi-gcc-toolchain",
		PackageName:       "arm_none_eabi_gcc_toolchain",
		BinaryPrefix:      "arm-none-eabi-",
		LauncherPrefix:    "run_",
		PackagingRevision: "1",
		VersionSeparator:  ".",
	}
}

// DefaultConfig returns the configuration used when no file is given.
// Relative directories are resolved against WorkDir.
func DefaultConfig() *GlobalConfig {
	naming := DefaultNaming()
	return &GlobalConfig{
		WorkDir:     ".",
		ProjectDir:  naming.ProjectName,
		DownloadDir: ".",
		DistDir:     naming.ProjectName + "/dist",
		ReportDir:   "builds",
		Python:      "python3",
		Naming:      naming,
		Archive: ArchiveConfig{
			AlternatePrefixes: []string{"gcc-arm-none-eabi-", "arm_none_eabi_gcc_"},
		},
		Verify: VerifyConfig{Checksum: true},
		Index: IndexConfig{
			Output:         "simple_repository_static",
			RequiresPython: ">=3.6",
			TokenEnv:       "GITHUB_TOKEN",
			APIURL:         "https://api.github.com",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads path, validates it against the configuration schema and
// overlays it on DefaultConfig. An empty path returns the defaults, unless
// DefaultConfigFile exists in the working directory.
func LoadConfig(path string) (*GlobalConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return cfg, nil
		}
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parseConfig(data, cfg)
}

func parseConfig(data []byte, cfg *GlobalConfig) (*GlobalConfig, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := validate.ValidateConfigYAML(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the schema cannot express.
func (c *GlobalConfig) Validate() error {
	n := c.Naming
	switch {
	case n.ProjectName == "" || n.PackageName == "":
		return fmt.Errorf("%w: project and package names must be set", ErrInvalidConfig)
	case n.LauncherPrefix == "":
		return fmt.Errorf("%w: launcher prefix must be set", ErrInvalidConfig)
	case n.PackagingRevision == "":
		return fmt.Errorf("%w: packaging revision must be set", ErrInvalidConfig)
	case n.VersionSeparator == "":
		return fmt.Errorf("%w: version separator must be set", ErrInvalidConfig)
	case c.Python == "":
		return fmt.Errorf("%w: python interpreter must be set", ErrInvalidConfig)
	}
	return nil
}
