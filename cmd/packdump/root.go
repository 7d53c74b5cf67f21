// Command packdump builds a Git pack-v2 file from a directory of loose
// objects, exercising the delta-compression and pack-writing core end
// to end from the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "packdump",
	Short: "Build a pack-v2 file from a directory of loose objects",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
