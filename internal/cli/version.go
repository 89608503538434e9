package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the build.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the janitor version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
