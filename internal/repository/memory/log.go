package memory

import (
	"context"

	"github.com/S1riyS/tnfs/internal/models"
)

type journalRepository struct {
	s *Store
}

func (r *journalRepository) Append(ctx context.Context, entry *models.JournalEntry) error {
	return r.s.do(ctx, func(st *state) error {
		entry.ID = int64(len(st.journal)) + 1
		st.journal = append(st.journal, *entry)
		return nil
	})
}

func (r *journalRepository) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	return r.ForPath(ctx, "", limit)
}

// ForPath with an empty path matches every entry.
func (r *journalRepository) ForPath(ctx context.Context, path string, limit int) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry
	err := r.s.do(ctx, func(st *state) error {
		for i := len(st.journal) - 1; i >= 0 && len(entries) < limit; i-- {
			if path == "" || st.journal[i].Path == path {
				entries = append(entries, st.journal[i])
			}
		}
		return nil
	})
	return entries, err
}

type auditRepository struct {
	s *Store
}

func (r *auditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	return r.s.do(ctx, func(st *state) error {
		record.ID = int64(len(st.audit)) + 1
		st.audit = append(st.audit, *record)
		return nil
	})
}

func (r *auditRepository) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := r.s.do(ctx, func(st *state) error {
		for i := len(st.audit) - 1; i >= 0 && len(records) < limit; i-- {
			records = append(records, st.audit[i])
		}
		return nil
	})
	return records, err
}
