package repository

import (
	"context"
	"fmt"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/pkg/database/postgresql"
)

// AuditRepository stores one row per MAC evaluation.
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

type auditRepository struct {
	db postgresql.Client
}

func NewAuditRepository(db postgresql.Client) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	const op = "repository.auditRepository.Append"

	query := `
		INSERT INTO mac_audit (session_id, username, role, path, operation, result, timestamp, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query,
		record.SessionID,
		record.Actor,
		record.Role,
		record.Path,
		string(record.Operation),
		string(record.Result),
		record.Timestamp,
		string(record.Mode),
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *auditRepository) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	const op = "repository.auditRepository.Recent"

	query := `
		SELECT id, session_id, username, role, path, operation, result, timestamp, mode
		FROM mac_audit
		ORDER BY id DESC
		LIMIT $1
	`

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var (
			rec                     models.AuditRecord
			operation, result, mode string
		)
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Actor, &rec.Role, &rec.Path, &operation, &result, &rec.Timestamp, &mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rec.Operation = models.Operation(operation)
		rec.Result = models.AuditResult(result)
		rec.Mode = models.Mode(mode)
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}
