package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/webframp/whatsnewbot/releasenotes"
	"github.com/webframp/whatsnewbot/vcs"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRawURL serves file contents without counting against the API quota.
	DefaultRawURL = "https://raw.githubusercontent.com/"

	// MaxCommits is the most commits GitHub returns in one page.
	MaxCommits = 100
)

// Config selects the repository and branch to read.
type Config struct {
	// Repo is "owner/name".
	Repo   string
	Branch string
	// Token is optional; without it requests are anonymous.
	Token string

	// BaseURL and RawURL override the API and raw content endpoints.
	BaseURL string
	RawURL  string

	// Rate is the proactive request rate. Zero means ProactiveRate.
	Rate rate.Limit

	// Revs receives the svn revisions of listed commits. May be nil.
	Revs vcs.RevStore
}

// Client reads one branch of a GitHub repository. It implements vcs.Source.
type Client struct {
	gh          *gh.Client
	http        *http.Client
	owner, repo string
	branch      string
	rawURL      string
	rateLimiter *RateLimiter
	revs        vcs.RevStore
}

var _ vcs.Source = (*Client)(nil)

// New creates a client. HTTP requests are traced with otelhttp.
func New(ctx context.Context, cfg Config) (*Client, error) {
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepo, cfg.Repo)
	}

	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   DefaultTimeout,
	}
	hc := base
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		hc = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
		hc.Timeout = DefaultTimeout
	}

	client := gh.NewClient(hc)
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		client.BaseURL = u
	}

	rawURL := cfg.RawURL
	if rawURL == "" {
		rawURL = DefaultRawURL
	}
	perSecond := cfg.Rate
	if perSecond == 0 {
		perSecond = ProactiveRate
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}

	return &Client{
		gh:          client,
		http:        hc,
		owner:       owner,
		repo:        repo,
		branch:      branch,
		rawURL:      strings.TrimSuffix(rawURL, "/") + "/",
		rateLimiter: NewRateLimiter(perSecond),
		revs:        cfg.Revs,
	}, nil
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// CurrentSHA returns the SHA of the head of the watched branch.
func (c *Client) CurrentSHA(ctx context.Context) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	sha, resp, err := c.gh.Repositories.GetCommitSHA1(ctx, c.owner, c.repo, c.branch, "")
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return "", c.wrapError(err, "get commit sha")
	}
	return sha, nil
}

// LastCommits lists up to num commits on the branch, newest first. With a
// path only commits touching it are listed. With since, listing starts one
// second before its date and stops at it, so only newer commits remain.
func (c *Client) LastCommits(ctx context.Context, num int, path string, since *vcs.Commit) ([]vcs.Commit, error) {
	num = max(1, min(num, MaxCommits))
	opts := &gh.CommitsListOptions{
		SHA:         c.branch,
		Path:        path,
		ListOptions: gh.ListOptions{PerPage: num},
	}
	if since != nil {
		opts.Since = since.Date.Add(-time.Second)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	list, resp, err := c.gh.Repositories.ListCommits(ctx, c.owner, c.repo, opts)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "list commits")
	}

	var commits, seen []vcs.Commit
	for _, rc := range list {
		commit := toCommit(rc)
		seen = append(seen, commit)
		if since != nil && commit.SHA == since.SHA {
			break
		}
		commits = append(commits, commit)
		if len(commits) == num {
			break
		}
	}

	if c.revs != nil {
		if err := c.revs.SaveSVNRevs(ctx, vcs.SVNRevs(seen)); err != nil {
			return nil, fmt.Errorf("save svn revs: %w", err)
		}
	}
	return commits, nil
}

// Commit looks up one commit by SHA. GitHub accepts unambiguous prefixes.
func (c *Client) Commit(ctx context.Context, ref string) (vcs.Commit, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return vcs.Commit{}, fmt.Errorf("rate limit wait: %w", err)
	}

	rc, resp, err := c.gh.Repositories.GetCommit(ctx, c.owner, c.repo, ref, nil)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return vcs.Commit{}, c.wrapError(err, "get commit "+ref)
	}
	commit := toCommit(rc)
	if c.revs != nil && commit.SVNRev != 0 {
		if err := c.revs.SaveSVNRevs(ctx, vcs.SVNRevs([]vcs.Commit{commit})); err != nil {
			return vcs.Commit{}, fmt.Errorf("save svn revs: %w", err)
		}
	}
	return commit, nil
}

func toCommit(rc *gh.RepositoryCommit) vcs.Commit {
	meta := rc.GetCommit()
	return vcs.NewCommit(
		rc.GetSHA(),
		meta.GetMessage(),
		meta.GetAuthor().GetName(),
		meta.GetCommitter().GetDate().Time,
		rc.GetHTMLURL(),
	)
}

// FileAt downloads path at ref from the raw content host. The document must
// be UTF-8.
func (c *Client) FileAt(ctx context.Context, ref, path string) (string, error) {
	u := c.BlobURL(ref, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg)), URL: u}
	}
	text, err := releasenotes.ReadDocument(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}
	return text, nil
}

// BlobURL is the address to download path at ref from.
func (c *Client) BlobURL(ref, path string) string {
	return fmt.Sprintf("%s%s/%s/%s/%s", c.rawURL, c.owner, c.repo, ref, strings.TrimPrefix(path, "/"))
}

func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.UpdateFromResponse(resp.Response)
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{StatusCode: ghErr.Response.StatusCode, Message: ghErr.Message}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		if apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s %s/%s: %w", operation, c.owner, c.repo, errors.Join(ErrRepoNotFound, apiErr))
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
