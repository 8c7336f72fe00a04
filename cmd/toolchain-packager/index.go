package main

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/toolchain-packager/internal/config"
	"github.com/open-edge-platform/toolchain-packager/internal/index"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/open-edge-platform/toolchain-packager/internal/utils/network"
	"github.com/spf13/cobra"
)

// Index command flags
var (
	indexOutput    string
	indexOverwrite bool
	indexToken     string
)

// newReleaseSource is swappable for tests.
var newReleaseSource = func(cfg *config.GlobalConfig, repository, token string) (index.ReleaseSource, error) {
	return index.NewGitHubClient(repository,
		index.WithBaseURL(cfg.Index.APIURL),
		index.WithToken(token),
		index.WithUserAgent(cfg.UserAgent),
		index.WithHTTPClient(network.NewSecureHTTPClient(cfg.UserAgent)),
	)
}

// createIndexCommand creates the index command group
func createIndexCommand() *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the static package index",
	}

	generateCmd := &cobra.Command{
		Use:   "generate [flags] [OWNER/REPO]",
		Short: "Generate a static simple package index from release wheels",
		Long: `Generate lists the releases of a GitHub repository, collects every
attached wheel with its sha256 and metadata files, and writes a static
"simple" repository that pip can use with --extra-index-url. Missing
checksums are computed by downloading the files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeIndexGenerate,
	}
	generateCmd.Flags().StringVar(&indexOutput, "output", "",
		"Output directory (default from config)")
	generateCmd.Flags().BoolVar(&indexOverwrite, "overwrite", false,
		"Replace an existing output directory")
	generateCmd.Flags().StringVar(&indexToken, "token", "",
		"GitHub token (default from the configured environment variable)")

	indexCmd.AddCommand(generateCmd)
	return indexCmd
}

func executeIndexGenerate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	cfg := globalConfig
	helpers := config.NewConfigHelpers(cfg)

	repository := cfg.Index.Repository
	if len(args) == 1 {
		repository = args[0]
	}
	if repository == "" {
		return fmt.Errorf("no repository given and index.repository is not configured")
	}

	output := indexOutput
	if output == "" {
		var err error
		if output, err = helpers.IndexOutput(); err != nil {
			return err
		}
	}
	token := indexToken
	if token == "" {
		token = helpers.IndexToken()
	}

	source, err := newReleaseSource(cfg, repository, token)
	if err != nil {
		return err
	}
	log.Infof("getting wheels from the releases of %s", repository)
	wheels, err := index.Generate(cmd.Context(), source, output, index.Options{
		ProjectName:    cfg.Naming.ProjectName,
		RequiresPython: cfg.Index.RequiresPython,
		Overwrite:      indexOverwrite,
		Progress:       os.Stderr,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "index of %d wheels written to %s\n", len(wheels), output)
	return nil
}
