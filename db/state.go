package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webframp/whatsnewbot/db/dbgen"
)

// State is the typed view of the database used by the watcher and handlers.
type State struct {
	db *sql.DB
	q  *dbgen.Queries
}

// NewState wraps an opened, migrated database.
func NewState(db *sql.DB) *State {
	return &State{db: db, q: dbgen.New(db)}
}

// Checkpoint returns the stored value for name, or "" if nothing was stored.
func (s *State) Checkpoint(ctx context.Context, name string) (string, error) {
	cp, err := s.q.GetCheckpoint(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checkpoint %s: %w", name, err)
	}
	return cp.Value, nil
}

// SetCheckpoint stores value for name.
func (s *State) SetCheckpoint(ctx context.Context, name, value string) error {
	err := s.q.UpsertCheckpoint(ctx, dbgen.UpsertCheckpointParams{
		Name:      name,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", name, err)
	}
	return nil
}

// Checkpoints lists every stored checkpoint.
func (s *State) Checkpoints(ctx context.Context) ([]dbgen.Checkpoint, error) {
	return s.q.ListCheckpoints(ctx)
}

// LookupSVNRev returns the SHA recorded for rev, or "" if it is unknown.
func (s *State) LookupSVNRev(ctx context.Context, rev int) (string, error) {
	sha, err := s.q.GetSVNRev(ctx, int64(rev))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get svn rev r%d: %w", rev, err)
	}
	return sha, nil
}

// SaveSVNRevs records svn revisions in one transaction.
func (s *State) SaveSVNRevs(ctx context.Context, revs map[int]string) error {
	if len(revs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.q.WithTx(tx)
	for rev, sha := range revs {
		if err := q.UpsertSVNRev(ctx, dbgen.UpsertSVNRevParams{Rev: int64(rev), Sha: sha}); err != nil {
			return fmt.Errorf("save svn rev r%d: %w", rev, err)
		}
	}
	return tx.Commit()
}

// SVNRevCount returns how many svn revisions have been mapped to commits.
func (s *State) SVNRevCount(ctx context.Context) (int64, error) {
	n, err := s.q.CountSVNRevs(ctx)
	if err != nil {
		return 0, fmt.Errorf("count svn revs: %w", err)
	}
	return n, nil
}

// Delivery describes one notification that was posted. Revision is the value
// its checkpoint advances to.
type Delivery struct {
	Kind       string
	Checkpoint string
	Revision   string
	Chunks     int
	Channel    string
}

// RecentDeliveries returns the latest limit deliveries, newest first.
func (s *State) RecentDeliveries(ctx context.Context, limit int) ([]dbgen.Delivery, error) {
	return s.q.ListRecentDeliveries(ctx, int64(limit))
}

// Advance moves a checkpoint to the delivered revision and records the
// delivery in the same transaction. It returns the delivery id.
func (s *State) Advance(ctx context.Context, d Delivery) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.q.WithTx(tx)
	now := time.Now().UTC()
	err = q.UpsertCheckpoint(ctx, dbgen.UpsertCheckpointParams{
		Name:      d.Checkpoint,
		Value:     d.Revision,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("set checkpoint %s: %w", d.Checkpoint, err)
	}

	id := uuid.NewString()
	var channel *string
	if d.Channel != "" {
		channel = &d.Channel
	}
	err = q.CreateDelivery(ctx, dbgen.CreateDeliveryParams{
		ID:         id,
		Kind:       d.Kind,
		Checkpoint: d.Checkpoint,
		Revision:   d.Revision,
		Chunks:     int64(d.Chunks),
		Channel:    channel,
		CreatedAt:  now,
	})
	if err != nil {
		return "", fmt.Errorf("record delivery: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}
