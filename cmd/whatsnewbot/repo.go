package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/webframp/whatsnewbot/builds"
	"github.com/webframp/whatsnewbot/fetch"
	"github.com/webframp/whatsnewbot/srv"
	"github.com/webframp/whatsnewbot/vcs"
)

func newCommitsCmd() *cobra.Command {
	var num int
	var path string
	var links bool

	cmd := &cobra.Command{
		Use:   "commits",
		Short: "List the latest commits of the watched branch",
		Example: `  whatsnewbot commits --num 10
  whatsnewbot commits --path whatsnew.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := srv.ParseCommitCount(fmt.Sprint(num)); err != nil {
				return err
			}
			if err := srv.ValidatePath(path); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			source, err := srv.OpenSource(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			stop := startProgress(cmd.ErrOrStderr(), "reading commits")
			commits, err := source.LastCommits(cmd.Context(), num, path, nil)
			stop()
			if err != nil {
				return err
			}
			return printCommits(cmd.OutOrStdout(), commits, links)
		},
	}
	cmd.Flags().IntVarP(&num, "num", "n", srv.DefaultCommits, "number of commits")
	cmd.Flags().StringVarP(&path, "path", "p", "", "only commits touching this path")
	cmd.Flags().BoolVar(&links, "links", false, "format revisions as markdown links")
	return cmd
}

func printCommits(w io.Writer, commits []vcs.Commit, links bool) error {
	for _, c := range commits {
		if _, err := fmt.Fprintln(w, c.ShortFormat(links)); err != nil {
			return err
		}
	}
	return nil
}

func newBuildsCmd() *cobra.Command {
	var url string
	var important bool

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List the nightly builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				url = cfg.NightlyCheckURL
			}
			stop := startProgress(cmd.ErrOrStderr(), "fetching "+url)
			list, _, err := builds.Fetch(cmd.Context(), fetch.New(fetch.DefaultTimeout), url)
			stop()
			if err != nil {
				return err
			}
			if important {
				list = builds.Important(list)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), builds.Format(list))
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "nightly-check.ini to read (defaults to nightly_check_url)")
	cmd.Flags().BoolVar(&important, "important", false, "only the builds worth announcing")
	return cmd
}
