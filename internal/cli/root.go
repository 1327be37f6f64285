// Package cli implements the bookrag command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/internal/logger"
)

var (
	cfg         *config.Config
	cfgPath     string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "bookrag",
	Short: "Semantic search over a personal ebook library",
	Long: `bookrag indexes a directory of EPUB files into a local vector store
and answers natural-language queries against it. Embeddings come from an
OpenAI-compatible service; everything else stays on disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetVerbose(verboseFlag)
		config.LoadEnv()
		var err error
		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
		} else {
			cfg, err = config.LoadDefault()
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging to stderr")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default ./bookrag.yaml)")
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
