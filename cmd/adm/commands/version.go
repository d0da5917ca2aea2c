package commands

import (
	"fmt"

	"questgen/internal/version"

	"github.com/spf13/cobra"
)

// VersionCommand returns the version command
func VersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("Version:    %s\n", version.Version)
			fmt.Printf("Commit:     %s\n", version.Commit)
			fmt.Printf("Build time: %s\n", version.BuildTime)
		},
	}
}
