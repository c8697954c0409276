// Package main provides the room server binary: the websocket room host,
// its HTTP gateway and the admin health endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "roomserver",
		Short: "Authoritative real-time room server",
		Long: `roomserver hosts shared rooms: clients connect over websockets, create and
mutate replicated entities, and receive state patches at a fixed rate.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file (env overrides: ROOMS_*)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newCheckCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
