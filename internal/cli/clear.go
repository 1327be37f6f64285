package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/indexer"
	"github.com/mkarczewski/bookrag/internal/ledger"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all indexed data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			fmt.Printf("This deletes every indexed vector and the ledger at %s. Continue? [y/N] ", cfg.DataDir)
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}
		lock, err := indexer.AcquireLock(cfg.LockPath())
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		vs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = vs.Close() }()
		if err := vs.DeleteAll(cmd.Context()); err != nil {
			return err
		}
		if err := ledger.New(cfg.LedgerPath()).Flush(); err != nil {
			return err
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Skip confirmation")
	rootCmd.AddCommand(clearCmd)
}
