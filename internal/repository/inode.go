package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

// InodeRepository is the inode allocator. Ids come from a monotonically
// increasing counter and are never reused; releasing an inode only drops its
// reference count.
type InodeRepository interface {
	Allocate(ctx context.Context) (int64, error)
	Get(ctx context.Context, ino int64) (*models.Inode, error)
	Release(ctx context.Context, ino int64) error
}

type inodeRepository struct {
	db postgresql.Client
}

func NewInodeRepository(db postgresql.Client) InodeRepository {
	return &inodeRepository{db: db}
}

func (r *inodeRepository) Allocate(ctx context.Context) (int64, error) {
	const op = "repository.inodeRepository.Allocate"

	counterQuery := `
		UPDATE inode_allocator
		SET next_ino = next_ino + 1
		WHERE id = 1
		RETURNING next_ino - 1
	`

	db := postgresql.GetDBClient(ctx, r.db)

	var ino int64
	if err := db.QueryRow(ctx, counterQuery).Scan(&ino); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	inodeQuery := `
		INSERT INTO inodes (ino, ref_count)
		VALUES ($1, 1)
	`

	if _, err := db.Exec(ctx, inodeQuery, ino); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return ino, nil
}

func (r *inodeRepository) Get(ctx context.Context, ino int64) (*models.Inode, error) {
	const op = "repository.inodeRepository.Get"

	query := `
		SELECT ino, ref_count
		FROM inodes
		WHERE ino = $1
	`

	var inode models.Inode
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, ino).Scan(&inode.Ino, &inode.RefCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &inode, nil
}

func (r *inodeRepository) Release(ctx context.Context, ino int64) error {
	const op = "repository.inodeRepository.Release"

	query := `
		UPDATE inodes
		SET ref_count = ref_count - 1
		WHERE ino = $1 AND ref_count > 0
	`

	db := postgresql.GetDBClient(ctx, r.db)
	if _, err := db.Exec(ctx, query, ino); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
