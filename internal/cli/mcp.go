package cli

import (
	"github.com/spf13/cobra"

	"github.com/mkarczewski/bookrag/internal/logger"
	"github.com/mkarczewski/bookrag/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the library over the Model Context Protocol on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		vs, err := openStore(cfg)
		if err != nil {
			return err
		}
		srch, err := buildSearcher(cfg, vs)
		if err != nil {
			_ = vs.Close()
			return err
		}
		answ, err := buildAnswerer(cfg)
		if err != nil {
			_ = vs.Close()
			return err
		}

		logger.Info("starting MCP server %s %s", mcpserver.ServerName, mcpserver.ServerVersion)
		srv := mcpserver.NewServer(srch, answ, vs, cfg.LedgerPath())
		return srv.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
