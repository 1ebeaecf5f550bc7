package srv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/webframp/whatsnewbot/github"
	"github.com/webframp/whatsnewbot/gitlocal"
	"github.com/webframp/whatsnewbot/vcs"
)

// OpenSource returns the repository the bot reads: the local clone when
// LocalRepo is set, otherwise the GitHub API. Svn revisions seen while
// listing commits are saved to revs.
func OpenSource(ctx context.Context, cfg Config, revs vcs.RevStore) (vcs.Source, error) {
	if cfg.LocalRepo != "" {
		webURL := ""
		if cfg.GitHubRepo != "" {
			webURL = "https://github.com/" + cfg.GitHubRepo
		}
		repo, err := gitlocal.Open(cfg.LocalRepo, gitlocal.Config{
			Branch: cfg.GitHubBranch,
			Remote: cfg.LocalRemote,
			WebURL: webURL,
			Revs:   revs,
		})
		if err != nil {
			return nil, fmt.Errorf("open local repo: %w", err)
		}
		slog.Info("reading commits from local clone", "path", cfg.LocalRepo, "branch", cfg.GitHubBranch)
		return repo, nil
	}

	client, err := github.New(ctx, github.Config{
		Repo:   cfg.GitHubRepo,
		Branch: cfg.GitHubBranch,
		Token:  cfg.GitHubToken,
		Revs:   revs,
	})
	if err != nil {
		return nil, fmt.Errorf("create github client: %w", err)
	}
	slog.Info("reading commits from github", "repo", cfg.GitHubRepo, "branch", cfg.GitHubBranch, "authenticated", cfg.GitHubToken != "")
	return client, nil
}
