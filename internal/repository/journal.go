package repository

import (
	"context"
	"fmt"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/pkg/database/postgresql"
)

// JournalRepository is the append-only operation log. There is no update
// or delete.
type JournalRepository interface {
	Append(ctx context.Context, entry *models.JournalEntry) error
	Recent(ctx context.Context, limit int) ([]models.JournalEntry, error)
	ForPath(ctx context.Context, path string, limit int) ([]models.JournalEntry, error)
}

type journalRepository struct {
	db postgresql.Client
}

func NewJournalRepository(db postgresql.Client) JournalRepository {
	return &journalRepository{db: db}
}

func (r *journalRepository) Append(ctx context.Context, entry *models.JournalEntry) error {
	const op = "repository.journalRepository.Append"

	query := `
		INSERT INTO journal (operation, path, timestamp, details, actor)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query,
		entry.Operation,
		entry.Path,
		entry.Timestamp,
		entry.Details,
		entry.Actor,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *journalRepository) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	const op = "repository.journalRepository.Recent"

	query := `
		SELECT id, operation, path, timestamp, details, actor
		FROM journal
		ORDER BY id DESC
		LIMIT $1
	`

	entries, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

func (r *journalRepository) ForPath(ctx context.Context, path string, limit int) ([]models.JournalEntry, error) {
	const op = "repository.journalRepository.ForPath"

	query := `
		SELECT id, operation, path, timestamp, details, actor
		FROM journal
		WHERE path = $1
		ORDER BY id DESC
		LIMIT $2
	`

	entries, err := r.query(ctx, query, path, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

func (r *journalRepository) query(ctx context.Context, query string, args ...any) ([]models.JournalEntry, error) {
	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Path, &e.Timestamp, &e.Details, &e.Actor); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
