// Package cli defines the agenttrail command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/agenttrail/agenttrail/internal/config"
)

var cfgFile string

// NewRootCmd builds the root command with the ingest and serve
// subcommands attached.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "agenttrail",
		Short: "Agent activity event logger and query API",
		Long: `agenttrail records agent activity events (prompts, file reads and
writes, commands, MCP tool calls) into append-only JSONL streams and
serves a filtered, paginated, aggregated query API over them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./config.yaml, ~/.agenttrail/config.yaml)")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd(version))

	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
