package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/ledger"
	"github.com/mkarczewski/bookrag/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is indexed",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := ledger.Load(cfg.LedgerPath())
		if err != nil {
			return err
		}
		vs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = vs.Close() }()
		st, err := vs.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Library:  %s\n", cfg.LibraryDir)
		fmt.Printf("Store:    %s (%s build)\n", cfg.StorePath(), store.BuildMode)
		fmt.Printf("Books:    %d indexed\n", led.Len())
		fmt.Printf("Units:    %d (%d chapter, %d paragraph)\n", st.Units, st.Chapters, st.Paragraphs)
		if led.Len() == 0 {
			return nil
		}
		fmt.Println()
		for _, key := range led.Keys() {
			e, _ := led.Get(key)
			fmt.Printf("  %s  (%d ch / %d para, indexed %s)\n",
				key, e.Chapters, e.Paragraphs, e.IndexedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
