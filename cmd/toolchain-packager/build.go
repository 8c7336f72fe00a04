package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-edge-platform/toolchain-packager/internal/archive"
	"github.com/open-edge-platform/toolchain-packager/internal/assembler"
	"github.com/open-edge-platform/toolchain-packager/internal/catalog"
	"github.com/open-edge-platform/toolchain-packager/internal/config"
	"github.com/open-edge-platform/toolchain-packager/internal/pkgfetcher"
	"github.com/open-edge-platform/toolchain-packager/internal/resolver"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/network"
	"github.com/open-edge-platform/toolchain-packager/internal/wheel"
	"github.com/open-edge-platform/toolchain-packager/internal/workspace"
	"github.com/spf13/cobra"
)

// Build command flags
var (
	buildRelease string = resolver.Latest
	buildOS      string
	buildArch    string
	skipWheel    bool
	keepArchive  bool
)

// Swappable for tests.
var (
	newFetcher = func(cfg *config.GlobalConfig) *pkgfetcher.Fetcher {
		return pkgfetcher.New(pkgfetcher.WithHTTPClient(network.NewSecureHTTPClient(cfg.UserAgent)))
	}
	newWheelBuilder = func(cfg *config.GlobalConfig) *wheel.Builder {
		return wheel.NewBuilder(cfg.Python)
	}
)

// createBuildCommand creates the build subcommand
func createBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build [flags]",
		Short: "Build Python wheels for a toolchain release",
		Long: `Build downloads the selected toolchain release, unpacks it into the
Python package, generates the launchers and project files and builds a
platform-tagged wheel with its metadata and checksum files.

Without --os and --arch every platform of the release is built. Passing
"all" for both does the same. When only one of them is given the other one
is taken from the host.`,
		Args: cobra.NoArgs,
		RunE: executeBuild,
	}

	buildCmd.Flags().StringVar(&buildRelease, "release", resolver.Latest,
		"Toolchain release name, or \"latest\"")
	buildCmd.Flags().StringVar(&buildOS, "os", "",
		"Operating system: linux, macos, windows or all")
	buildCmd.Flags().StringVar(&buildArch, "arch", "",
		"CPU architecture: x86_64, arm64 or all")
	buildCmd.Flags().BoolVar(&skipWheel, "skip-wheel", false,
		"Stop after generating the project files")
	buildCmd.Flags().BoolVar(&keepArchive, "keep-archive", false,
		"Keep the downloaded archive after unpacking")
	return buildCmd
}

// executeBuild handles the build command logic
func executeBuild(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	cfg := globalConfig

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	var osHint, archHint *string
	if cmd.Flags().Changed("os") {
		osHint = &buildOS
	}
	if cmd.Flags().Changed("arch") {
		archHint = &buildArch
	}
	targets, err := resolver.Resolve(cat, buildRelease, osHint, archHint)
	if err != nil {
		return err
	}

	layout, err := workspace.LayoutFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := layout.Check(); err != nil {
		return err
	}
	helpers := config.NewConfigHelpers(cfg)
	if err := helpers.CreateDownloadDir(); err != nil {
		return err
	}
	if err := helpers.CreateDistDir(); err != nil {
		return err
	}

	report := logger.NewBuildReport(fmt.Sprintf("build %s", targets[0].Release))
	for _, target := range targets {
		log.Infof("building %s (%s)", target.Release, target.PlatformKey)
		if err := buildTarget(cmd.Context(), cfg, cat, layout, target, report); err != nil {
			return fmt.Errorf("building %s (%s): %w", target.Release, target.PlatformKey, err)
		}
	}

	reportDir, err := helpers.ReportDir()
	if err != nil {
		return err
	}
	reportPath, err := report.WriteTo(reportDir)
	if err != nil {
		return err
	}
	log.Infof("build report written to %s", reportPath)
	return nil
}

func buildTarget(ctx context.Context, cfg *config.GlobalConfig, cat *catalog.Catalog, layout workspace.Layout,
	target resolver.Target, report *logger.BuildReport) error {
	log := logger.Logger()
	d := target.Descriptor

	// every target starts from a clean project
	if _, err := workspace.Clean(layout, cfg.Naming); err != nil {
		return err
	}

	fetcher := newFetcher(cfg)
	archivePath, err := fetcher.Fetch(ctx, d.URL, layout.DownloadDir)
	if err != nil {
		return err
	}
	if err := verifyArchive(ctx, cfg, fetcher, d, archivePath, layout.DownloadDir); err != nil {
		return err
	}

	toolchainDir, err := archive.Unpack(archivePath, layout.PackageDir, archive.Options{
		AlternatePrefixes: cfg.Archive.AlternatePrefixes,
		Headerless:        cat.HeaderlessArchives(),
	})
	if err != nil {
		return err
	}
	if !keepArchive {
		if err := os.Remove(archivePath); err != nil {
			log.Warnf("could not remove %s: %v", archivePath, err)
		}
	}

	shortVersion, err := cat.ShortVersion(target.Release)
	if err != nil {
		return err
	}
	version := assembler.PackageVersion(shortVersion, cfg.Naming)
	if _, err := assembler.Assemble(layout.ProjectDir, layout.PackageDir, toolchainDir, version, cfg.Naming); err != nil {
		return err
	}
	report.Add(fmt.Sprintf("%s %s project %s", target.Release, target.PlatformKey, layout.ProjectDir))
	if skipWheel {
		return nil
	}

	wheelPath, err := newWheelBuilder(cfg).Build(ctx, layout.ProjectDir, layout.DistDir, d.PlatformTag)
	if err != nil {
		return err
	}
	metadata, err := wheel.ReadPackageMetadata(layout.PackageDir)
	if err != nil {
		return err
	}
	metadataPath, err := wheel.WriteMetadataFile(wheelPath, metadata)
	if err != nil {
		return err
	}
	for _, p := range []string{metadataPath, wheelPath} {
		sumPath, err := wheel.WriteChecksumFile(p)
		if err != nil {
			return err
		}
		report.Add(fmt.Sprintf("%s %s %s", target.Release, target.PlatformKey, filepath.Base(sumPath)))
	}
	report.Add(fmt.Sprintf("%s %s %s", target.Release, target.PlatformKey, filepath.Base(wheelPath)))
	log.Infof("package %s (%s) created: %s", target.Release, target.PlatformKey, wheelPath)
	return nil
}

func verifyArchive(ctx context.Context, cfg *config.GlobalConfig, fetcher *pkgfetcher.Fetcher,
	d catalog.ArtifactDescriptor, archivePath, downloadDir string) error {
	log := logger.Logger()

	if cfg.Verify.Checksum && d.MD5 != "" {
		if err := pkgfetcher.VerifyMD5(archivePath, d.MD5); err != nil {
			os.Remove(archivePath)
			return err
		}
		log.Debugf("md5 of %s verified", filepath.Base(archivePath))
	}

	if cfg.Verify.Keyring == "" || d.SignatureURL == "" {
		return nil
	}
	sigPath, err := fetcher.Fetch(ctx, d.SignatureURL, downloadDir)
	if err != nil {
		return err
	}
	defer os.Remove(sigPath)
	if err := pkgfetcher.VerifySignature(archivePath, sigPath, cfg.Verify.Keyring); err != nil {
		os.Remove(archivePath)
		return err
	}
	log.Infof("signature of %s verified", filepath.Base(archivePath))
	return nil
}
