// Package vcs holds the commit record shared by the repository sources and
// the lookup of svn revision numbers carried over from the git-svn mirror.
package vcs

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// HeadlineLength is the longest headline kept from a commit message.
const HeadlineLength = 120

var svnRevPattern = regexp.MustCompile(`@([0-9]+) `)

// Commit is the summary of one commit shown in chat.
type Commit struct {
	SHA    string `json:"sha"`
	SVNRev int    `json:"svn_rev,omitempty"`
	Author string `json:"author"`
	URL    string `json:"url"`
	// Message excludes the git-svn-id line.
	Message  string    `json:"message"`
	Headline string    `json:"headline"`
	Date     time.Time `json:"date"`
}

// NewCommit builds a Commit from the raw fields a source reports. A trailing
// "git-svn-id:" line is parsed for the svn revision and removed from the
// message, and a URL ending in the full SHA is shortened to 8 characters.
func NewCommit(sha, message, author string, date time.Time, url string) Commit {
	c := Commit{
		SHA:     sha,
		Author:  author,
		Date:    date,
		URL:     url,
		Message: message,
	}

	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	if last := lines[len(lines)-1]; strings.HasPrefix(last, "git-svn-id: ") {
		if m := svnRevPattern.FindStringSubmatch(last); m != nil {
			c.SVNRev, _ = strconv.Atoi(m[1])
		}
		lines = lines[:len(lines)-1]
		c.Message = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	c.Headline = trim(lines[0], HeadlineLength)

	if head, tail := path.Split(url); tail == sha && len(sha) > 8 {
		c.URL = head + sha[:8]
	}
	return c
}

func trim(s string, maxLen int) string {
	r := []rune(s)
	if len(r) > maxLen {
		return string(r[:maxLen-3]) + "..."
	}
	return s
}

// Rev is the revision for human consumption: "r1234" for commits that came
// from svn, otherwise the first 6 characters of the SHA.
func (c Commit) Rev() string {
	if c.SVNRev != 0 {
		return "r" + strconv.Itoa(c.SVNRev)
	}
	if len(c.SHA) > 6 {
		return c.SHA[:6]
	}
	return c.SHA
}

// ShortFormat is the one line form used in commit lists. With hyperlink the
// revision is a markdown link.
func (c Commit) ShortFormat(hyperlink bool) string {
	if hyperlink {
		return fmt.Sprintf("[%s](%s): %s [%s]", c.Rev(), c.URL, c.Headline, c.Author)
	}
	return fmt.Sprintf("%s: %s [%s]", c.Rev(), c.Headline, c.Author)
}

func (c Commit) String() string {
	return c.ShortFormat(false)
}

// Format is the long form showing the whole message.
func (c Commit) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  [%s]  %s\n", c.Rev(), c.Author, c.Date.Format(time.ANSIC))
	sb.WriteString(c.URL + "\n")
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	sb.WriteString(c.Message)
	return sb.String()
}

// Source is a repository that commits and file revisions can be read from.
type Source interface {
	// CurrentSHA returns the SHA of the last commit on the watched branch.
	CurrentSHA(ctx context.Context) (string, error)

	// LastCommits returns up to num commits, newest first, optionally only
	// those touching path. When since is non-nil the list stops before it.
	LastCommits(ctx context.Context, num int, path string, since *Commit) ([]Commit, error)

	// Commit returns the commit ref points to. ref is a SHA or a prefix of
	// one.
	Commit(ctx context.Context, ref string) (Commit, error)

	// FileAt returns the content of path at ref.
	FileAt(ctx context.Context, ref, path string) (string, error)
}
