package main

import (
	"fmt"

	"github.com/open-edge-platform/toolchain-packager/internal/config"
	"github.com/open-edge-platform/toolchain-packager/internal/wheel"
	"github.com/spf13/cobra"
)

// createSdistCommand creates the sdist subcommand
func createSdistCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sdist SDIST_PROJECT_DIR WHEEL",
		Short: "Build a PyPI source distribution from a built wheel",
		Long: `Sdist runs "python -m build --sdist" in the source distribution project
folder and passes the wheel to its build backend as the source_wheel config
setting. The archive is written to the configured dist folder and named after
the wheel, without its platform tags.`,
		Args: cobra.ExactArgs(2),
		RunE: executeSdist,
	}
}

func executeSdist(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	distDir, err := config.NewConfigHelpers(cfg).DistDir()
	if err != nil {
		return err
	}
	sdist, err := newWheelBuilder(cfg).BuildSdist(cmd.Context(), args[0], distDir, args[1])
	if err != nil {
		return err
	}
	sumPath, err := wheel.WriteChecksumFile(sdist)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", sdist, sumPath)
	return nil
}
