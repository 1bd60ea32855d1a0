// Package cli wires the engine's commands: taxonomy bootstrap, batch
// classification, session resume, and node examination.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-taxa/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "taxa",
	Short: "Taxa - hierarchical taxonomy classification with LLM ensembles",
	Long: `Taxa classifies content items into a hierarchical taxonomy using
ensembles of LLM calls combined by majority vote.

Classification descends the tree recursively: an item matched into a
branch node is re-classified against that node's children, so one item
can land in several leaves at several depths. Sessions suspend durably
between batches and resume across process restarts.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("taxa v0.1.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.taxa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgFile)
}
