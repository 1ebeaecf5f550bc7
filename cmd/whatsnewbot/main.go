package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webframp/whatsnewbot/srv"
)

var flagConfig string

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "whatsnewbot",
		Short: "Announce OHRRPGCE changelog updates and answer chat commands",
		Long: `whatsnewbot watches the OHRRPGCE repository, changelogs and nightly
builds, posts what changed to a chat webhook, and serves the commands chat
bots relay.

The other commands run the same lookups from a terminal.`,
		Version:       fmt.Sprintf("%s (%s)", srv.Version, srv.CommitSHA),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (.yaml, .toml or .json)")

	root.AddCommand(
		newServeCmd(),
		newCompareCmd(),
		newReleaseCmd(),
		newItemsCmd(),
		newCommitsCmd(),
		newBuildsCmd(),
	)
	return root
}

func loadConfig() (srv.Config, error) {
	cfg, err := srv.LoadConfig(flagConfig)
	if err != nil {
		return srv.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
