package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webframp/whatsnewbot/fetch"
	"github.com/webframp/whatsnewbot/vcs"
)

const (
	oldNotes = "Release [2.0]\n *** New Features\n  * foo\n"
	newNotes = oldNotes + "  * bar\n"
)

func writeFile(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagConfig = ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCompareCommand(t *testing.T) {
	oldPath := writeFile(t, "old.txt", oldNotes)
	newPath := writeFile(t, "new.txt", newNotes)

	t.Run("diff", func(t *testing.T) {
		out, err := execute(t, "compare", oldPath, newPath)
		require.NoError(t, err)
		assert.Equal(t, "  Release [2.0]\n\n   *** New Features\n+   * bar\n", out)
	})

	t.Run("no diff", func(t *testing.T) {
		out, err := execute(t, "compare", "--no-diff", oldPath, newPath)
		require.NoError(t, err)
		assert.Equal(t, "Release [2.0]\n\n *** New Features\n  * bar\n", out)
	})

	t.Run("url and file", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(oldNotes))
		}))
		defer ts.Close()

		out, err := execute(t, "compare", ts.URL+"/whatsnew.txt", newPath)
		require.NoError(t, err)
		assert.Contains(t, out, "+   * bar")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "compare", filepath.Join(t.TempDir(), "nope.txt"), newPath)
		assert.Error(t, err)
	})

	t.Run("needs two arguments", func(t *testing.T) {
		_, err := execute(t, "compare", oldPath)
		assert.Error(t, err)
	})
}

func TestRunCompare_Color(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = saved })

	oldPath := writeFile(t, "old.txt", "Release [1]\n * kept\n * dropped\n")
	newPath := writeFile(t, "new.txt", "Release [1]\n * kept\n * added\n")

	var out bytes.Buffer
	err := runCompare(context.Background(), fetch.New(0), &out, oldPath, newPath, compareOptions{color: true})
	require.NoError(t, err)

	assert.Contains(t, out.String(), addedColor.Sprint("+  * added"))
	assert.Contains(t, out.String(), removedColor.Sprint("-  * dropped"))
}

func TestColorize(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = saved })

	got := colorize("  Header\n+ new\n- old\n? ^\n")

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "  Header", lines[0])
	assert.Equal(t, addedColor.Sprint("+ new"), lines[1])
	assert.Equal(t, removedColor.Sprint("- old"), lines[2])
	assert.Equal(t, hintColor.Sprint("? ^"), lines[3])
	assert.Equal(t, "", lines[4])
}

func TestReleaseCommand(t *testing.T) {
	path := writeFile(t, "whatsnew.txt", "Wip [Hróðvitnir+1]\n * bar\n\nRelease [2.0]\n * foo\n")

	out, err := execute(t, "release", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "* bar")
	assert.NotContains(t, out, "* foo")

	out, err = execute(t, "release", "--file", path, "2.0")
	require.NoError(t, err)
	assert.Contains(t, out, "* foo")

	_, err = execute(t, "release", "--file", path, "nonexistent")
	assert.ErrorContains(t, err, "No release named")

	_, err = execute(t, "release", "--source", "beta", "--file", path)
	assert.Error(t, err)
}

func TestItemsCommand(t *testing.T) {
	path := writeFile(t, "whatsnew.txt", "Release [2.0]\n * a long entry\n   wrapped here\n")

	out, err := execute(t, "items", "--unwrap", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "header"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "bullet"), lines[1])
	assert.Contains(t, lines[1], `" * a long entry wrapped here\n"`)

	out, err = execute(t, "items", path)
	require.NoError(t, err)
	assert.Contains(t, out, `\n   wrapped here`)
}

func TestBuildsCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[ohrrpgce-player-win-wip-sdl2.zip]\nsvn_rev = 13001\nbuild_date = 20240502\n"))
	}))
	defer ts.Close()

	out, err := execute(t, "builds", "--url", ts.URL+"/nightly/nightly-check.ini")
	require.NoError(t, err)
	assert.Equal(t, "Windows: r13001 "+ts.URL+"/nightly/ohrrpgce-win-wip-sdl2.zip\n", out)
}

func TestPrintCommits(t *testing.T) {
	commits := []vcs.Commit{
		{SHA: "abcdef123456", SVNRev: 13001, Author: "James", Headline: "Fixed slices", URL: "https://github.com/ohrrpgce/ohrrpgce/commit/abcdef12"},
		{SHA: "0123456789ab", Author: "TeeEmCee", Headline: "Docs"},
	}

	var out bytes.Buffer
	require.NoError(t, printCommits(&out, commits, false))

	assert.Equal(t, "r13001: Fixed slices [James]\n012345: Docs [TeeEmCee]\n", out.String())
}

func TestWatchFiles_RequiresLocalFile(t *testing.T) {
	err := watchFiles(context.Background(), []string{"https://example.com/a.txt"}, func() {})
	assert.ErrorContains(t, err, "local file")
}

func TestWatchFiles_CallsOnChange(t *testing.T) {
	path := writeFile(t, "whatsnew.txt", oldNotes)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchFiles(ctx, []string{path}, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Keep writing until the watcher has been set up and notices.
	for i := 0; ; i++ {
		require.NoError(t, os.WriteFile(path, []byte(newNotes), 0o644))
		select {
		case <-changed:
			cancel()
			require.NoError(t, <-done)
			return
		case <-time.After(300 * time.Millisecond):
		}
		if i == 20 {
			t.Fatal("no change reported")
		}
	}
}

func TestStartProgress_NotATerminal(t *testing.T) {
	var buf bytes.Buffer
	stop := startProgress(&buf, "fetching")
	stop()
	assert.Empty(t, buf.String())

	f, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	defer f.Close()
	startProgress(f, "fetching")()
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
