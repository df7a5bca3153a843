// Command parlower drives the lowering pipeline over a serialized IR
// module: load, run the seven sub-passes, and either dump the result or
// persist it back to disk.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"parlower/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "parlower",
	Short: "Parallel lowering pass driver",
	Long:  `parlower loads a resolved IR module and runs it through the parallel lowering pipeline.`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(batchCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().String("ui", "auto", "progress display (auto|on|off)")
	rootCmd.PersistentFlags().String("cache-dir", "parlower", "cache namespace under the user cache directory")
	rootCmd.PersistentFlags().String("config", "", "path to a parlower.toml runtime config")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func wantColor(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
		return true
	case "off":
		return false
	default:
		return isTerminal(os.Stdout)
	}
}
