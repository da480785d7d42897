package main

import (
	"github.com/spf13/cobra"

	"github.com/hurttlocker/contest/internal/mcp"
)

func (c *cli) newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve stored runs over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := c.loadStages()
			if err != nil {
				return err
			}
			srv := mcp.NewServer(mcp.ServerConfig{
				Store:   s,
				Canon:   st.canon,
				Version: version,
				Logger:  c.logger,
			})
			return mcp.ServeStdio(cmd.Context(), srv, cmd.InOrStdin(), cmd.OutOrStdout(), c.logger)
		},
	}
}
