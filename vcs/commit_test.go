package vcs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullSHA = "0123456789abcdef0123456789abcdef01234567"

func TestNewCommit(t *testing.T) {
	date := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)

	t.Run("svn mirrored commit", func(t *testing.T) {
		msg := "Fix crash in slice editor\n\nLonger explanation.\ngit-svn-id: https://rpg.hamsterrepublic.com/source/wip@13579 1234-abcd\n"
		c := NewCommit(fullSHA, msg, "TeeEmCee", date, "https://github.com/ohrrpgce/ohrrpgce/commit/"+fullSHA)

		assert.Equal(t, 13579, c.SVNRev)
		assert.Equal(t, "Fix crash in slice editor\n\nLonger explanation.", c.Message)
		assert.Equal(t, "Fix crash in slice editor", c.Headline)
		assert.Equal(t, "https://github.com/ohrrpgce/ohrrpgce/commit/01234567", c.URL)
		assert.Equal(t, "r13579", c.Rev())
	})

	t.Run("plain git commit", func(t *testing.T) {
		c := NewCommit(fullSHA, "Update README", "bob", date, "https://example.com/c/other")

		assert.Zero(t, c.SVNRev)
		assert.Equal(t, "Update README", c.Message)
		assert.Equal(t, "012345", c.Rev())
		assert.Equal(t, "https://example.com/c/other", c.URL)
	})

	t.Run("long headline is trimmed", func(t *testing.T) {
		c := NewCommit(fullSHA, strings.Repeat("a", 130)+"\nbody", "bob", date, "")

		assert.Len(t, c.Headline, HeadlineLength)
		assert.True(t, strings.HasSuffix(c.Headline, "..."))
	})
}

func TestCommitFormat(t *testing.T) {
	date := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	c := Commit{
		SHA:      fullSHA,
		SVNRev:   42,
		Author:   "alice",
		URL:      "https://example.com/c/01234567",
		Message:  "Add thing\n\nDetails",
		Headline: "Add thing",
		Date:     date,
	}

	assert.Equal(t, "r42: Add thing [alice]", c.ShortFormat(false))
	assert.Equal(t, "[r42](https://example.com/c/01234567): Add thing [alice]", c.ShortFormat(true))
	assert.Equal(t, c.ShortFormat(false), c.String())
	assert.Equal(t,
		"r42  [alice]  Sat Mar  9 14:05:00 2024\nhttps://example.com/c/01234567\n--------------------\nAdd thing\n\nDetails",
		c.Format())
}

type memStore map[int]string

func (m memStore) LookupSVNRev(_ context.Context, rev int) (string, error) {
	return m[rev], nil
}

func (m memStore) SaveSVNRevs(_ context.Context, revs map[int]string) error {
	for k, v := range revs {
		m[k] = v
	}
	return nil
}

func TestDecodeRev(t *testing.T) {
	ctx := context.Background()
	store := memStore{100: fullSHA}

	sha, err := DecodeRev(ctx, store, "r100")
	require.NoError(t, err)
	assert.Equal(t, fullSHA, sha)

	sha, err = DecodeRev(ctx, store, "abcd12")
	require.NoError(t, err)
	assert.Equal(t, "abcd12", sha)

	_, err = DecodeRev(ctx, store, "r101")
	assert.ErrorIs(t, err, ErrUnknownRev)

	for _, bad := range []string{"abc", "xyz123", "rfoo", "", "ABCDEF"} {
		_, err = DecodeRev(ctx, store, bad)
		assert.ErrorIs(t, err, ErrInvalidRev, "rev %q", bad)
	}
}

func TestSVNRevs(t *testing.T) {
	revs := SVNRevs([]Commit{{SHA: "a", SVNRev: 1}, {SHA: "b"}, {SHA: "c", SVNRev: 3}})

	assert.Equal(t, map[int]string{1: "a", 3: "c"}, revs)
}
