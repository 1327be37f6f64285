package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [library-dir]",
	Short: "Write a starter config for a library directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if info, err := os.Stat(library); err != nil || !info.IsDir() {
			return fmt.Errorf("%s is not a directory", library)
		}

		target := "bookrag.yaml"
		if cfgPath != "" {
			target = cfgPath
		}
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists; edit it instead", target)
		}

		fresh := config.Default()
		fresh.LibraryDir = library
		if err := config.Save(target, fresh); err != nil {
			return err
		}
		if err := os.MkdirAll(fresh.DataDir, 0o755); err != nil {
			return err
		}

		fmt.Printf("Wrote %s for library %s\n", target, library)
		fmt.Printf("Set %s and run 'bookrag index'.\n", config.EnvAPIKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
