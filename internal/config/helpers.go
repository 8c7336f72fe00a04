package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigHelpers provides convenient access to global configuration
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// WorkDir returns the absolute path to the work directory
func (c *ConfigHelpers) WorkDir() (string, error) {
	return filepath.Abs(c.config.WorkDir)
}

// ProjectDir returns the absolute path of the Python project directory
func (c *ConfigHelpers) ProjectDir() (string, error) {
	return c.resolve(c.config.ProjectDir)
}

// PackageDir returns the absolute path of the import package, <project>/src/<package>
func (c *ConfigHelpers) PackageDir() (string, error) {
	projectDir, err := c.ProjectDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(projectDir, "src", c.config.Naming.PackageName), nil
}

// DownloadDir returns the absolute path where archives are downloaded
func (c *ConfigHelpers) DownloadDir() (string, error) {
	return c.resolve(c.config.DownloadDir)
}

// DistDir returns the absolute path where wheels are written
func (c *ConfigHelpers) DistDir() (string, error) {
	return c.resolve(c.config.DistDir)
}

// ReportDir returns the absolute path of the build report directory
func (c *ConfigHelpers) ReportDir() (string, error) {
	return c.resolve(c.config.ReportDir)
}

// IndexOutput returns the absolute path of the static index output directory
func (c *ConfigHelpers) IndexOutput() (string, error) {
	return c.resolve(c.config.Index.Output)
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}

// IsDebugMode returns true if debug logging is enabled
func (c *ConfigHelpers) IsDebugMode() bool {
	return c.config.Logging.Level == "debug"
}

// IndexToken returns the API token from the configured environment variable
func (c *ConfigHelpers) IndexToken() string {
	if c.config.Index.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.config.Index.TokenEnv)
}

// GetConfig returns the underlying global config (for advanced usage)
func (c *ConfigHelpers) GetConfig() *GlobalConfig {
	return c.config
}

// CreateDownloadDir ensures the download directory exists
func (c *ConfigHelpers) CreateDownloadDir() error {
	dir, err := c.DownloadDir()
	if err != nil {
		return fmt.Errorf("resolving download directory: %w", err)
	}
	return createDirIfNotExists(dir)
}

// CreateDistDir ensures the dist directory exists
func (c *ConfigHelpers) CreateDistDir() error {
	dir, err := c.DistDir()
	if err != nil {
		return fmt.Errorf("resolving dist directory: %w", err)
	}
	return createDirIfNotExists(dir)
}

func (c *ConfigHelpers) resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	workDir, err := c.WorkDir()
	if err != nil {
		return "", fmt.Errorf("resolving work directory: %w", err)
	}
	return filepath.Join(workDir, p), nil
}

// Helper function to create directories
func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
