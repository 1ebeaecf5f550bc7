package srv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/webframp/whatsnewbot/builds"
	"github.com/webframp/whatsnewbot/db"
	"github.com/webframp/whatsnewbot/fetch"
	"github.com/webframp/whatsnewbot/releasenotes"
	"github.com/webframp/whatsnewbot/vcs"
)

// Checkpoint names.
const (
	CheckpointCommits       = "commits"
	CheckpointRelease       = "release"
	CheckpointBuilds        = "builds"
	checkpointChangelogBase = "changelog:"
)

// Watcher periodically looks for new commits, changelog entries, releases
// and builds, and announces them. A checkpoint only advances after its
// announcement was delivered, so failed deliveries are retried next time.
type Watcher struct {
	Source   vcs.Source
	Fetcher  *fetch.Fetcher
	State    *db.State
	Notifier Notifier
	Markers  *MarkerClient

	Interval        time.Duration
	CommitsPerCheck int
	NewestOnly      bool
	WatchPaths      []string
	ReleaseURL      string
	NightlyCheckURL string
	MaxLength       int

	mu sync.Mutex
}

// NewWatcher builds a Watcher from cfg.
func NewWatcher(cfg Config, source vcs.Source, fetcher *fetch.Fetcher, state *db.State, notifier Notifier) *Watcher {
	return &Watcher{
		Source:          source,
		Fetcher:         fetcher,
		State:           state,
		Notifier:        notifier,
		Interval:        cfg.CheckInterval,
		CommitsPerCheck: cfg.CommitsPerCheck,
		NewestOnly:      cfg.NewestOnly,
		WatchPaths:      cfg.WatchPaths,
		ReleaseURL:      cfg.ReleaseURL,
		NightlyCheckURL: cfg.NightlyCheckURL,
		MaxLength:       cfg.MaxMessageLength,
	}
}

// Run checks immediately and then every Interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("watcher started", "interval", w.Interval, "paths", w.WatchPaths)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			slog.Error("watcher check", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs every check once. Checks are independent; the errors of
// all failed checks are returned together. A call made while another is in
// progress returns immediately.
func (w *Watcher) RunOnce(ctx context.Context) error {
	if !w.mu.TryLock() {
		slog.Warn("watcher check already running")
		return nil
	}
	defer w.mu.Unlock()

	var errs []error
	if w.Source != nil {
		errs = append(errs, w.check(ctx, CheckpointCommits, w.checkCommits))
		for _, path := range w.WatchPaths {
			errs = append(errs, w.check(ctx, checkpointChangelogBase+path, func(ctx context.Context) error {
				return w.checkChangelog(ctx, path)
			}))
		}
	}
	if w.ReleaseURL != "" {
		errs = append(errs, w.check(ctx, CheckpointRelease, w.checkRelease))
	}
	if w.NightlyCheckURL != "" {
		errs = append(errs, w.check(ctx, CheckpointBuilds, w.checkBuilds))
	}
	return errors.Join(errs...)
}

func (w *Watcher) check(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := StartCheckSpan(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		RecordError(span, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// announce delivers msg and then advances the checkpoint.
func (w *Watcher) announce(ctx context.Context, kind, checkpoint, revision string, msg Message) error {
	if err := w.Notifier.Post(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s: %w", kind, err)
	}
	return w.advance(ctx, kind, checkpoint, revision, len(msg.Render(w.MaxLength)))
}

func (w *Watcher) advance(ctx context.Context, kind, checkpoint, revision string, chunks int) error {
	ctx, span := StartDBSpan(ctx, "advance", attribute.String("checkpoint", checkpoint))
	defer span.End()

	id, err := w.State.Advance(ctx, db.Delivery{
		Kind:       kind,
		Checkpoint: checkpoint,
		Revision:   revision,
		Chunks:     chunks,
		Channel:    w.Notifier.Channel(),
	})
	if err != nil {
		RecordError(span, err)
		return err
	}
	slog.Info("checkpoint advanced", "checkpoint", checkpoint, "kind", kind, "delivery", id, "chunks", chunks)
	return nil
}

// record moves a checkpoint without announcing anything.
func (w *Watcher) record(ctx context.Context, checkpoint, revision string) error {
	ctx, span := StartDBSpan(ctx, "set_checkpoint", attribute.String("checkpoint", checkpoint))
	defer span.End()

	if err := w.State.SetCheckpoint(ctx, checkpoint, revision); err != nil {
		RecordError(span, err)
		return err
	}
	slog.Info("checkpoint recorded", "checkpoint", checkpoint)
	return nil
}

// checkCommits announces commits made since the last announced one. The
// first run only records the current commit.
func (w *Watcher) checkCommits(ctx context.Context) error {
	stored, err := w.State.Checkpoint(ctx, CheckpointCommits)
	if err != nil {
		return err
	}

	if stored == "" {
		latest, err := w.Source.LastCommits(ctx, 1, "", nil)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			return nil
		}
		return w.record(ctx, CheckpointCommits, encodeCommit(latest[0]))
	}

	var since vcs.Commit
	if err := json.Unmarshal([]byte(stored), &since); err != nil {
		return fmt.Errorf("decode commits checkpoint: %w", err)
	}
	current, err := w.Source.CurrentSHA(ctx)
	if err != nil {
		return err
	}
	if current == since.SHA {
		return nil
	}

	commits, err := w.Source.LastCommits(ctx, w.CommitsPerCheck, "", &since)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		return nil
	}

	var body strings.Builder
	for i := len(commits) - 1; i >= 0; i-- {
		body.WriteString(commits[i].ShortFormat(false))
		body.WriteByte('\n')
	}
	title := fmt.Sprintf("%d new commit(s):", len(commits))
	if len(commits) == w.CommitsPerCheck {
		title = fmt.Sprintf("Latest %d commits:", len(commits))
	}
	return w.announce(ctx, "commits", CheckpointCommits, encodeCommit(commits[0]), Message{
		Title: title,
		Body:  body.String(),
	})
}

func encodeCommit(c vcs.Commit) string {
	b, _ := json.Marshal(c)
	return string(b)
}

// checkChangelog announces the entries added to path since the last
// announced revision of it.
func (w *Watcher) checkChangelog(ctx context.Context, path string) error {
	checkpoint := checkpointChangelogBase + path
	stored, err := w.State.Checkpoint(ctx, checkpoint)
	if err != nil {
		return err
	}

	latest, err := w.Source.LastCommits(ctx, 1, path, nil)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		return nil
	}
	head := latest[0]
	if stored == head.SHA {
		return nil
	}
	if stored == "" {
		return w.record(ctx, checkpoint, head.SHA)
	}

	var oldText, newText string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		oldText, err = w.Source.FileAt(gctx, stored, path)
		return err
	})
	g.Go(func() error {
		var err error
		newText, err = w.Source.FileAt(gctx, head.SHA, path)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	diff := releasenotes.CompareReleaseNotes(oldText, newText, releasenotes.Options{
		Diff:       true,
		NewestOnly: w.NewestOnly,
	})
	if strings.TrimSpace(diff) == "" {
		slog.Info("changelog changed without new entries", "path", path, "rev", head.Rev())
		return w.record(ctx, checkpoint, head.SHA)
	}

	return w.announce(ctx, "changelog", checkpoint, head.SHA, Message{
		Title: fmt.Sprintf("%s updated in %s: %s", path, head.Rev(), head.URL),
		Body:  diff,
	})
}

// checkRelease announces the newest release section when the release
// changelog changes.
func (w *Watcher) checkRelease(ctx context.Context) error {
	stored, err := w.State.Checkpoint(ctx, CheckpointRelease)
	if err != nil {
		return err
	}
	doc, changed, err := w.Fetcher.Changed(ctx, w.ReleaseURL, stored)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if stored == "" {
		return w.record(ctx, CheckpointRelease, doc.Hash)
	}

	notes, err := releasenotes.SpecificReleaseNotes(doc.Text, "")
	if err != nil {
		return err
	}
	name := ""
	if names := releasenotes.Releases(doc.Text); len(names) > 0 {
		name = names[0]
	}
	if err := w.announce(ctx, "release", CheckpointRelease, doc.Hash, Message{
		Title: fmt.Sprintf("Release notes updated: %s", w.ReleaseURL),
		Body:  notes,
	}); err != nil {
		return err
	}
	w.Markers.AnnouncementMarker(ctx, "release", name)
	return nil
}

// checkBuilds announces the important nightly builds when the build
// manifest changes.
func (w *Watcher) checkBuilds(ctx context.Context) error {
	stored, err := w.State.Checkpoint(ctx, CheckpointBuilds)
	if err != nil {
		return err
	}
	doc, changed, err := w.Fetcher.Changed(ctx, w.NightlyCheckURL, stored)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if stored == "" {
		return w.record(ctx, CheckpointBuilds, doc.Hash)
	}

	list, err := builds.Parse([]byte(doc.Text), w.NightlyCheckURL)
	if err != nil {
		return err
	}
	important := builds.Important(list)
	if len(important) == 0 {
		return w.record(ctx, CheckpointBuilds, doc.Hash)
	}
	return w.announce(ctx, "builds", CheckpointBuilds, doc.Hash, Message{
		Title: "New nightly builds:",
		Body:  builds.Format(important),
	})
}
