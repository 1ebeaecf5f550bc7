package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/webframp/whatsnewbot/fetch"
	"github.com/webframp/whatsnewbot/releasenotes"
	"github.com/webframp/whatsnewbot/srv"
)

// watchDebounce groups the burst of events editors produce on save.
const watchDebounce = 200 * time.Millisecond

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	hintColor    = color.New(color.FgCyan)
)

type compareOptions struct {
	newestOnly bool
	noDiff     bool
	color      bool
	watch      bool
}

func newCompareCmd() *cobra.Command {
	var opts compareOptions

	cmd := &cobra.Command{
		Use:   "compare OLD NEW",
		Short: "Show what changed between two versions of a changelog",
		Long: `Compare two versions of a whatsnew.txt style changelog and print the
entries NEW adds, each under the headers that scope it. OLD and NEW are file
paths or http(s) URLs.`,
		Example: `  # What the nightly adds over the last release
  whatsnewbot compare https://hamsterrepublic.com/ohrrpgce/whatsnew.txt whatsnew.txt --newest-only

  # Re-run whenever the working copy is saved
  whatsnewbot compare old.txt whatsnew.txt --watch --color`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.color {
				color.NoColor = false
			}
			f := fetch.New(fetch.DefaultTimeout)
			out := cmd.OutOrStdout()
			compare := func(ctx context.Context) error {
				return runCompare(ctx, f, out, args[0], args[1], opts)
			}

			stop := startProgress(cmd.ErrOrStderr(), "loading changelogs")
			err := compare(cmd.Context())
			stop()
			if err != nil {
				return err
			}
			if !opts.watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watchFiles(ctx, args, func() {
				fmt.Fprintln(out, strings.Repeat("-", 40))
				if err := compare(ctx); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&opts.newestOnly, "newest-only", false, "only show changes to the topmost release")
	cmd.Flags().BoolVar(&opts.noDiff, "no-diff", false, "print added entries without diff markers")
	cmd.Flags().BoolVar(&opts.color, "color", false, "colour added, removed and hint lines")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "compare again whenever a local file changes")
	return cmd
}

func runCompare(ctx context.Context, f *fetch.Fetcher, w io.Writer, oldSrc, newSrc string, opts compareOptions) error {
	var oldDoc, newDoc fetch.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		oldDoc, err = f.Load(gctx, oldSrc)
		return err
	})
	g.Go(func() error {
		var err error
		newDoc, err = f.Load(gctx, newSrc)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	diff := releasenotes.CompareReleaseNotes(oldDoc.Text, newDoc.Text, releasenotes.Options{
		Diff:       !opts.noDiff,
		NewestOnly: opts.newestOnly,
	})
	if opts.color && !opts.noDiff {
		diff = colorize(diff)
	}
	_, err := io.WriteString(w, diff)
	return err
}

// colorize colours diff lines by their tag.
func colorize(diff string) string {
	var sb strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		text, nl := strings.CutSuffix(line, "\n")
		switch {
		case strings.HasPrefix(text, "+ "):
			sb.WriteString(addedColor.Sprint(text))
		case strings.HasPrefix(text, "- "):
			sb.WriteString(removedColor.Sprint(text))
		case strings.HasPrefix(text, "? "):
			sb.WriteString(hintColor.Sprint(text))
		default:
			sb.WriteString(text)
		}
		if nl {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// watchFiles calls onChange after any of the local files in sources is
// written, until ctx is done. Parent directories are watched so files that
// editors replace on save keep being followed.
func watchFiles(ctx context.Context, sources []string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	for _, src := range sources {
		if isURL(src) {
			continue
		}
		path, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		files[path] = true
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
		}
	}
	if len(files) == 0 {
		return errors.New("--watch needs at least one local file")
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if files[filepath.Clean(event.Name)] && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				pending = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-pending:
			pending = nil
			onChange()
		}
	}
}

func newReleaseCmd() *cobra.Command {
	var source, file string

	cmd := &cobra.Command{
		Use:   "release [NAME]",
		Short: "Print the notes of one release",
		Long: `Print the notes of the named release, or of the newest one when NAME is
omitted. Names match regardless of case and accents.`,
		Example: `  whatsnewbot release hrodvitnir
  whatsnewbot release --source important`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := srv.ValidateSource(source)
			if err != nil {
				return err
			}
			if file == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				file = cfg.SourceURL(src)
			}
			stop := startProgress(cmd.ErrOrStderr(), "loading "+file)
			doc, err := fetch.New(fetch.DefaultTimeout).Load(cmd.Context(), file)
			stop()
			if err != nil {
				return err
			}

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			notes, err := releasenotes.SpecificReleaseNotes(doc.Text, name)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), notes)
			return err
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", srv.SourceNightly, "changelog to read: nightly, release or important")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read this file or URL instead of the configured source")
	return cmd
}

func newItemsCmd() *cobra.Command {
	var unwrap bool

	cmd := &cobra.Command{
		Use:   "items FILE",
		Short: "Show how a changelog is split into items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fetch.New(fetch.DefaultTimeout).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), doc.Text, unwrap)
		},
	}
	cmd.Flags().BoolVar(&unwrap, "unwrap", false, "join wrapped continuation lines into their item")
	return cmd
}

func printItems(w io.Writer, text string, unwrap bool) error {
	for _, it := range releasenotes.ParseItems(releasenotes.SplitLines(text), unwrap) {
		if _, err := fmt.Fprintf(w, "%-6s %2d %q\n", it.Kind(), it.Indent(), it.Text); err != nil {
			return err
		}
	}
	return nil
}
