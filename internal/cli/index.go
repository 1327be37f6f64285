package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/indexer"
	"github.com/mkarczewski/bookrag/internal/ledger"
)

var (
	indexForce bool
	indexBooks []string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index new and changed books",
	Long: `Scans the library directory, compares file fingerprints against the
ledger, and indexes books that are new or whose content changed. Books
that disappeared from the library are removed from the index.`,
	RunE: runIndex,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Alias for index",
	RunE:  runIndex,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [book]",
	Short: "Rebuild the index, or force-reindex a single book",
	Long: `Without an argument, clears the vector store and ledger and rebuilds
the whole library from scratch. With a book path or key, re-indexes just
that book regardless of its ledger state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = vs.Close() }()
		idx, err := buildIndexer(cfg, vs)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			sum, err := idx.Run(cmd.Context(), indexer.Options{
				Force: true,
				Books: []string{bookKeyArg(args[0])},
			})
			if err != nil {
				return err
			}
			printSummary(sum)
			return nil
		}
		if err := idx.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Index cleared, rebuilding...")
		sum, err := idx.Run(cmd.Context(), indexer.Options{})
		if err != nil {
			return err
		}
		printSummary(sum)
		return nil
	},
}

// bookKeyArg normalizes a user-supplied book path into a library key,
// accepting either the bare key or a path relative to the library dir.
func bookKeyArg(arg string) string {
	if rel, err := filepath.Rel(cfg.LibraryDir, arg); err == nil && !strings.HasPrefix(rel, "..") {
		return ledger.KeyFor(rel)
	}
	return ledger.KeyFor(arg)
}

func runIndex(cmd *cobra.Command, args []string) error {
	vs, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = vs.Close() }()
	idx, err := buildIndexer(cfg, vs)
	if err != nil {
		return err
	}
	books := make([]string, 0, len(indexBooks))
	for _, b := range indexBooks {
		books = append(books, bookKeyArg(b))
	}
	sum, err := idx.Run(cmd.Context(), indexer.Options{
		Force: indexForce,
		Books: books,
	})
	if err != nil {
		return err
	}
	printSummary(sum)
	if sum.Failed > 0 || sum.TimedOut > 0 {
		return fmt.Errorf("%d books failed, %d timed out", sum.Failed, sum.TimedOut)
	}
	return nil
}

func printSummary(sum *indexer.Summary) {
	fmt.Printf("Indexed %d, skipped %d, failed %d, timed out %d",
		sum.Indexed, sum.Skipped, sum.Failed, sum.TimedOut)
	if sum.Removed > 0 {
		fmt.Printf(", removed %d", sum.Removed)
	}
	fmt.Printf(" (%.1fs)\n", sum.Duration.Seconds())
	for _, r := range sum.Reports {
		switch r.Outcome {
		case indexer.OutcomeIndexed:
			fmt.Printf("  + %s (%d chapter units, %d paragraph units)\n", r.Key, r.Chapters, r.Paragraphs)
		case indexer.OutcomeFailed:
			fmt.Printf("  ! %s: %v\n", r.Key, r.Err)
		case indexer.OutcomeTimedOut:
			fmt.Printf("  ~ %s: timed out\n", r.Key)
		}
	}
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "Re-index books with unchanged fingerprints too")
	indexCmd.Flags().StringSliceVar(&indexBooks, "book", nil, "Restrict to a book key (repeatable)")
	updateCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "Re-index books with unchanged fingerprints too")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(reindexCmd)
}
