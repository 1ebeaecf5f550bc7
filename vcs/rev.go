package vcs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRev is returned for strings that are neither "r<number>" nor
	// a hex SHA of at least 4 characters.
	ErrInvalidRev = errors.New("vcs: invalid revision")

	// ErrUnknownRev is returned for svn revisions that have not been seen.
	ErrUnknownRev = errors.New("vcs: unknown svn revision")
)

var shaPattern = regexp.MustCompile(`^[0-9a-f]*$`)

// RevStore records which git commit each svn revision became.
type RevStore interface {
	LookupSVNRev(ctx context.Context, rev int) (string, error)
	SaveSVNRevs(ctx context.Context, revs map[int]string) error
}

// DecodeRev turns a user supplied revision into a git SHA. Recent svn
// revisions are looked up in store; SHAs are passed through.
func DecodeRev(ctx context.Context, store RevStore, rev string) (string, error) {
	rev = strings.TrimSpace(rev)
	if n, ok := strings.CutPrefix(rev, "r"); ok {
		num, err := strconv.Atoi(n)
		if err != nil || num <= 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidRev, rev)
		}
		sha, err := store.LookupSVNRev(ctx, num)
		if err != nil {
			return "", err
		}
		if sha == "" {
			return "", fmt.Errorf("%w: %s", ErrUnknownRev, rev)
		}
		return sha, nil
	}
	if len(rev) >= 4 && shaPattern.MatchString(rev) {
		return rev, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRev, rev)
}

// SVNRevs collects the svn revision to SHA mapping of commits.
func SVNRevs(commits []Commit) map[int]string {
	revs := make(map[int]string)
	for _, c := range commits {
		if c.SVNRev != 0 {
			revs[c.SVNRev] = c.SHA
		}
	}
	return revs
}
