package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/searcher"
	"github.com/mkarczewski/bookrag/pkg/types"
)

var (
	searchTop    int
	searchLevel  string
	searchAuthor string
	searchBook   string
	searchFull   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the indexed library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = vs.Close() }()
		srch, err := buildSearcher(cfg, vs)
		if err != nil {
			return err
		}

		results, err := srch.Search(cmd.Context(), searcher.Request{
			Query:     strings.Join(args, " "),
			TopN:      searchTop,
			Level:     types.Level(searchLevel),
			Author:    searchAuthor,
			BookTitle: searchBook,
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%2d. [%.3f] %s by %s", i+1, r.Score, r.BookTitle, r.BookAuthor)
			if r.ChapterTitle != "" {
				fmt.Printf(" (%s)", r.ChapterTitle)
			}
			fmt.Printf(" [%s]\n", r.Level)
			if searchFull {
				fmt.Printf("    %s\n", r.Text)
			} else {
				fmt.Printf("    %s\n", r.Preview(240))
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTop, "top", "n", 0, "Number of results (default from config)")
	searchCmd.Flags().StringVarP(&searchLevel, "level", "l", "", "Restrict to 'chapter' or 'paragraph' units")
	searchCmd.Flags().StringVarP(&searchAuthor, "author", "a", "", "Author substring filter")
	searchCmd.Flags().StringVarP(&searchBook, "book", "b", "", "Book title substring filter")
	searchCmd.Flags().BoolVar(&searchFull, "full", false, "Print full unit text instead of a preview")
	rootCmd.AddCommand(searchCmd)
}
