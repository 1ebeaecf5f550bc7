// Package gitlocal reads commits and file revisions from a local clone,
// fetching from its remote before each check. It is the offline alternative
// to the GitHub API source.
package gitlocal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/webframp/whatsnewbot/releasenotes"
	"github.com/webframp/whatsnewbot/vcs"
)

// Config selects the branch of a clone to read.
type Config struct {
	Branch string
	// Remote is fetched before resolving the branch. Empty reads the local
	// branch only.
	Remote string
	// WebURL is the repository page, used to link commits as WebURL/commit/SHA.
	WebURL string
	// Revs receives the svn revisions of listed commits. May be nil.
	Revs vcs.RevStore
}

// Repo is a local clone. It implements vcs.Source.
type Repo struct {
	repo *git.Repository
	cfg  Config
}

var _ vcs.Source = (*Repo)(nil)

// Open opens the repository containing path.
func Open(path string, cfg Config) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	cfg.WebURL = strings.TrimSuffix(cfg.WebURL, "/")
	return &Repo{repo: repo, cfg: cfg}, nil
}

// Fetch updates the remote tracking branch. Being up to date is not an error.
func (r *Repo) Fetch(ctx context.Context) error {
	if r.cfg.Remote == "" {
		return nil
	}
	err := r.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: r.cfg.Remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", r.cfg.Remote, err)
	}
	return nil
}

func (r *Repo) head() (plumbing.Hash, error) {
	names := []plumbing.ReferenceName{plumbing.NewBranchReferenceName(r.cfg.Branch)}
	if r.cfg.Remote != "" {
		names = append([]plumbing.ReferenceName{plumbing.NewRemoteReferenceName(r.cfg.Remote, r.cfg.Branch)}, names...)
	}
	for _, name := range names {
		ref, err := r.repo.Reference(name, true)
		if err == nil {
			return ref.Hash(), nil
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", name, err)
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("branch %s: %w", r.cfg.Branch, plumbing.ErrReferenceNotFound)
}

// CurrentSHA fetches and returns the head of the branch.
func (r *Repo) CurrentSHA(ctx context.Context) (string, error) {
	if err := r.Fetch(ctx); err != nil {
		slog.Warn("gitlocal: fetch failed, using local refs", "error", err)
	}
	h, err := r.head()
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// LastCommits walks the branch history newest first.
func (r *Repo) LastCommits(ctx context.Context, num int, path string, since *vcs.Commit) ([]vcs.Commit, error) {
	num = max(1, num)
	from, err := r.head()
	if err != nil {
		return nil, err
	}

	opts := &git.LogOptions{From: from}
	if path != "" {
		opts.PathFilter = func(p string) bool { return p == path }
	}
	if since != nil {
		t := since.Date.Add(-time.Second)
		opts.Since = &t
	}

	iter, err := r.repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", r.cfg.Branch, err)
	}
	defer iter.Close()

	var commits, seen []vcs.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commit := r.toCommit(c)
		seen = append(seen, commit)
		if since != nil && commit.SHA == since.SHA {
			return storer.ErrStop
		}
		commits = append(commits, commit)
		if len(commits) >= num {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", r.cfg.Branch, err)
	}

	if r.cfg.Revs != nil {
		if err := r.cfg.Revs.SaveSVNRevs(ctx, vcs.SVNRevs(seen)); err != nil {
			return nil, fmt.Errorf("save svn revs: %w", err)
		}
	}
	return commits, nil
}

func (r *Repo) toCommit(c *object.Commit) vcs.Commit {
	sha := c.Hash.String()
	url := ""
	if r.cfg.WebURL != "" {
		url = r.cfg.WebURL + "/commit/" + sha
	}
	return vcs.NewCommit(sha, c.Message, c.Author.Name, c.Committer.When, url)
}

func (r *Repo) commitAt(ref string) (*object.Commit, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", ref, err)
	}
	return c, nil
}

// Commit returns the commit ref resolves to. Hash prefixes are accepted.
func (r *Repo) Commit(ctx context.Context, ref string) (vcs.Commit, error) {
	c, err := r.commitAt(ref)
	if err != nil {
		return vcs.Commit{}, err
	}
	commit := r.toCommit(c)
	if r.cfg.Revs != nil && commit.SVNRev != 0 {
		if err := r.cfg.Revs.SaveSVNRevs(ctx, vcs.SVNRevs([]vcs.Commit{commit})); err != nil {
			return vcs.Commit{}, fmt.Errorf("save svn revs: %w", err)
		}
	}
	return commit, nil
}

// FileAt returns the content of path in the commit ref resolves to.
func (r *Repo) FileAt(_ context.Context, ref, path string) (string, error) {
	c, err := r.commitAt(ref)
	if err != nil {
		return "", err
	}
	f, err := c.File(path)
	if err != nil {
		return "", fmt.Errorf("%s at %s: %w", path, ref, err)
	}
	rd, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer rd.Close()
	return releasenotes.ReadDocument(rd)
}
