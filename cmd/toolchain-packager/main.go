package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-edge-platform/toolchain-packager/internal/catalog"
	"github.com/open-edge-platform/toolchain-packager/internal/config"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Global command flags
var (
	configFile string
	logLevel   string
	verbose    bool
)

var (
	// globalConfig is loaded by the logging hook before any subcommand runs.
	globalConfig = config.DefaultConfig()
	flushLogs    = func() {}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := createRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	flushLogs()
	if err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates the root command with all subcommands attached
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "toolchain-packager",
		Short: "Package the Arm GNU Toolchain as Python wheels",
		Long: `toolchain-packager downloads releases of the Arm GNU Toolchain
(arm-none-eabi-gcc), repackages each platform build as a Python wheel with a
console script per executable, and generates a static package index from the
wheels published on a release host.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		fmt.Sprintf("Configuration file (default: ./%s when present)", config.DefaultConfigFile))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.AddCommand(createBuildCommand())
	rootCmd.AddCommand(createSdistCommand())
	rootCmd.AddCommand(createCleanCommand())
	rootCmd.AddCommand(createReleasesCommand())
	rootCmd.AddCommand(createPackageVersionCommand())
	rootCmd.AddCommand(createPackageVersionsCommand())
	rootCmd.AddCommand(createExecutablesCommand())
	rootCmd.AddCommand(createIndexCommand())

	attachLoggingHooks(rootCmd)
	return rootCmd
}

// attachLoggingHooks makes every subcommand load the configuration and set
// up logging before it runs.
func attachLoggingHooks(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		if sub.PersistentPreRunE == nil {
			sub.PersistentPreRunE = setupSession
		}
		attachLoggingHooks(sub)
	}
}

func setupSession(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	level := resolveRequestedLogLevel(cmd)
	if level == "" {
		level = cfg.Logging.Level
	}
	flush, err := logger.Setup(level)
	if err != nil {
		return err
	}
	flushLogs = flush
	cfg.Logging.Level = level
	globalConfig = cfg

	if configFile != "" {
		logger.Logger().Debugf("using configuration %s", configFile)
	}
	return nil
}

// resolveRequestedLogLevel returns the level asked for on the command line,
// or "" when the configuration should decide.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetBool("verbose"); err == nil && v {
			return "debug"
		}
	}
	return ""
}

// loadCatalog returns the configured release catalog, or the embedded one.
func loadCatalog(cfg *config.GlobalConfig) (*catalog.Catalog, error) {
	if cfg.CatalogFile == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(cfg.CatalogFile)
}
