package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/searcher"
	"github.com/mkarczewski/bookrag/pkg/types"
)

var askTop int

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the library with citations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		vs, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = vs.Close() }()
		srch, err := buildSearcher(cfg, vs)
		if err != nil {
			return err
		}
		answ, err := buildAnswerer(cfg)
		if err != nil {
			return err
		}

		results, err := srch.Search(cmd.Context(), searcher.Request{
			Query: question,
			TopN:  askTop,
			Level: types.LevelParagraph,
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("Nothing in the library matches that question.")
			return nil
		}

		answer, err := answ.Ask(cmd.Context(), question, results)
		if err != nil {
			return err
		}

		fmt.Println(answer.Text)
		fmt.Println("\nSources:")
		for i, r := range answer.Sources {
			fmt.Printf("  [%d] %s by %s", i+1, r.BookTitle, r.BookAuthor)
			if r.ChapterTitle != "" {
				fmt.Printf(" (%s)", r.ChapterTitle)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	askCmd.Flags().IntVarP(&askTop, "top", "n", 5, "Number of passages to ground the answer on")
	rootCmd.AddCommand(askCmd)
}
