// ABOUTME: version command
// ABOUTME: Prints product and version information
package main

import (
	"fmt"

	"github.com/Resonate-Protocol/soundcard-go/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", version.Product, version.Version, version.Manufacturer)
	},
}
