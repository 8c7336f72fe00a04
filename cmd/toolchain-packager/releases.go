package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-edge-platform/toolchain-packager/internal/assembler"
	"github.com/open-edge-platform/toolchain-packager/internal/catalog"
	"github.com/spf13/cobra"
)

// createReleasesCommand creates the releases subcommand
func createReleasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "releases",
		Short: "List the toolchain releases in the catalog",
		Args:  cobra.NoArgs,
		RunE:  executeReleases,
	}
}

func executeReleases(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(globalConfig)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-14s %-8s %s\n", "RELEASE", "VERSION", "PLATFORMS")
	for _, name := range cat.Names() {
		rel, err := cat.Release(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-14s %-8s %s\n", rel.Name,
			assembler.PackageVersion(rel.ShortVersion, globalConfig.Naming),
			strings.Join(rel.PlatformKeys(), ","))
	}
	return nil
}

// createPackageVersionCommand creates the package-version subcommand
func createPackageVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "package-version RELEASE",
		Short: "Print the wheel version built for a toolchain release",
		Args:  cobra.ExactArgs(1),
		RunE:  executePackageVersion,
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			cat, err := catalog.Default()
			if err != nil || len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return cat.Names(), cobra.ShellCompDirectiveNoFileComp
		},
	}
}

func executePackageVersion(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(globalConfig)
	if err != nil {
		return err
	}
	release := args[0]
	if release == "latest" {
		release = cat.Latest()
	}
	short, err := cat.ShortVersion(release)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), assembler.PackageVersion(short, globalConfig.Naming))
	return nil
}

// createPackageVersionsCommand creates the package-versions subcommand
func createPackageVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "package-versions",
		Short: "Print the wheel versions of every release as a JSON array",
		Args:  cobra.NoArgs,
		RunE:  executePackageVersions,
	}
}

func executePackageVersions(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(globalConfig)
	if err != nil {
		return err
	}
	versions := make([]string, 0, len(cat.Names()))
	for _, name := range cat.Names() {
		short, err := cat.ShortVersion(name)
		if err != nil {
			return err
		}
		versions = append(versions, assembler.PackageVersion(short, globalConfig.Naming))
	}
	data, err := json.Marshal(versions)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// createExecutablesCommand creates the executables subcommand
func createExecutablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "executables TOOLCHAIN_DIR",
		Short: "List the executables of an unpacked toolchain and their launcher names",
		Args:  cobra.ExactArgs(1),
		RunE:  executeExecutables,
	}
}

func executeExecutables(cmd *cobra.Command, args []string) error {
	exes, err := assembler.Executables(args[0], globalConfig.Naming)
	if err != nil {
		return err
	}
	for _, exe := range exes {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s.py)\n", exe.Binary, exe.Identifier)
	}
	return nil
}
