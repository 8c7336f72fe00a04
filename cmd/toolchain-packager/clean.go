package main

import (
	"fmt"

	"github.com/open-edge-platform/toolchain-packager/internal/utils/logger"
	"github.com/open-edge-platform/toolchain-packager/internal/workspace"
	"github.com/spf13/cobra"
)

// createCleanCommand creates the clean subcommand
func createCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove build artifacts from the project",
		Long: `Clean deletes the generated project descriptor and manifest, the
launchers, build and egg-info folders, __pycache__ folders, downloaded
toolchain archives and unpacked toolchains. Tagged wheels in the dist folder
are kept.`,
		Args: cobra.NoArgs,
		RunE: executeClean,
	}
}

func executeClean(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	layout, err := workspace.LayoutFromConfig(globalConfig)
	if err != nil {
		return err
	}
	removed, err := workspace.Clean(layout, globalConfig.Naming)
	for _, p := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p)
	}
	if err != nil {
		return err
	}
	log.Infof("cleaning done, %d entries removed", len(removed))
	return nil
}
