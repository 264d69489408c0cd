// Package journal records every committed namespace operation. It is a
// forward-only history, not a recovery log: nothing is replayed, pruned or
// rotated.
package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/pkg/clock"
	"github.com/S1riyS/tnfs/pkg/logging"
)

// Operation labels written to the journal.
const (
	OpCreate = "create"
	OpRead   = "read"
	OpWrite  = "write"
	OpRemove = "remove"
	OpRename = "rename"
	OpMove   = "move"
	OpCopy   = "copy"
	OpList   = "list"
	OpChmod  = "chmod"
	OpStat   = "stat"
)

// DefaultLimit bounds history queries that do not set a limit.
const DefaultLimit = 100

type Journal struct {
	repo  repository.JournalRepository
	clock clock.Clock
}

func New(repo repository.JournalRepository, clk clock.Clock) *Journal {
	if clk == nil {
		clk = clock.Real()
	}
	return &Journal{repo: repo, clock: clk}
}

// Append writes one entry. Called with a transaction context it becomes part
// of that transaction and disappears if it rolls back.
func (j *Journal) Append(ctx context.Context, principal models.Principal, operation, path, details string) error {
	const op = "journal.Journal.Append"

	entry := models.JournalEntry{
		Operation: operation,
		Path:      path,
		Timestamp: j.clock.Now(),
		Details:   details,
		Actor:     principal.Actor,
	}

	if err := j.repo.Append(ctx, &entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Journal entry appended",
		slog.Int64("id", entry.ID),
		slog.String("operation", operation),
		slog.String("path", path),
	)

	return nil
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	const op = "journal.Journal.Recent"

	entries, err := j.repo.Recent(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

// ForPath returns the history of a single path, newest first.
func (j *Journal) ForPath(ctx context.Context, path string, limit int) ([]models.JournalEntry, error) {
	const op = "journal.Journal.ForPath"

	entries, err := j.repo.ForPath(ctx, path, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
