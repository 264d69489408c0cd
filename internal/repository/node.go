package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
	"github.com/S1riyS/tnfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

// NodeRepository is the path-keyed node table. Get, Children and Subtree
// return a nil slice or nil node (and no error) when nothing matches.
// Descendant scans are anchored on the path separator.
type NodeRepository interface {
	// Get returns node metadata without content.
	Get(ctx context.Context, path string) (*models.Node, error)
	Content(ctx context.Context, path string) ([]byte, error)
	Create(ctx context.Context, node *models.Node) error
	UpdateContent(ctx context.Context, path string, content []byte, modifiedAt time.Time) error
	UpdateMode(ctx context.Context, path string, mode uint32, modifiedAt time.Time) error
	Delete(ctx context.Context, path string) error
	// Rename rewrites oldPath and every descendant to live under newPath and
	// returns the number of nodes moved.
	Rename(ctx context.Context, oldPath, newPath string) (int64, error)
	// Children lists immediate children in discovery (inode) order.
	Children(ctx context.Context, dir string) ([]models.Node, error)
	// Subtree lists every strict descendant with content, parents first.
	Subtree(ctx context.Context, dir string) ([]models.Node, error)
	HasDescendants(ctx context.Context, dir string) (bool, error)
}

type nodeRepository struct {
	db postgresql.Client
}

func NewNodeRepository(db postgresql.Client) NodeRepository {
	return &nodeRepository{db: db}
}

const nodeColumns = `path, ino, kind, owner, mode, size, created_at, modified_at`

func scanNode(row pgx.Row, node *models.Node) error {
	return row.Scan(
		&node.Path,
		&node.Ino,
		&node.Kind,
		&node.Owner,
		&node.Mode,
		&node.Size,
		&node.CreatedAt,
		&node.ModifiedAt,
	)
}

func (r *nodeRepository) Get(ctx context.Context, path string) (*models.Node, error) {
	const op = "repository.nodeRepository.Get"

	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE path = $1`

	var node models.Node
	db := postgresql.GetDBClient(ctx, r.db)
	if err := scanNode(db.QueryRow(ctx, query, path), &node); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &node, nil
}

func (r *nodeRepository) Content(ctx context.Context, path string) ([]byte, error) {
	const op = "repository.nodeRepository.Content"

	query := `
		SELECT content
		FROM nodes
		WHERE path = $1
	`

	var data []byte
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, path).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kerrors.FileNotFound(path)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (r *nodeRepository) Create(ctx context.Context, node *models.Node) error {
	const op = "repository.nodeRepository.Create"

	query := `
		INSERT INTO nodes (path, ino, kind, owner, mode, content, size, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	content := node.Content
	if content == nil {
		content = []byte{}
	}

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query,
		node.Path,
		node.Ino,
		int16(node.Kind),
		node.Owner,
		node.Mode,
		content,
		node.Size,
		node.CreatedAt,
		node.ModifiedAt,
	)
	if err != nil {
		if postgresql.IsUniqueViolation(err) {
			return kerrors.AlreadyExists(node.Path)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *nodeRepository) UpdateContent(ctx context.Context, path string, content []byte, modifiedAt time.Time) error {
	const op = "repository.nodeRepository.UpdateContent"

	query := `
		UPDATE nodes
		SET content = $1, size = $2, modified_at = $3
		WHERE path = $4
	`

	db := postgresql.GetDBClient(ctx, r.db)
	tag, err := db.Exec(ctx, query, content, int64(len(content)), modifiedAt, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return kerrors.FileNotFound(path)
	}

	return nil
}

func (r *nodeRepository) UpdateMode(ctx context.Context, path string, mode uint32, modifiedAt time.Time) error {
	const op = "repository.nodeRepository.UpdateMode"

	query := `
		UPDATE nodes
		SET mode = $1, modified_at = $2
		WHERE path = $3
	`

	db := postgresql.GetDBClient(ctx, r.db)
	tag, err := db.Exec(ctx, query, mode, modifiedAt, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return kerrors.PathNotFound(path)
	}

	return nil
}

func (r *nodeRepository) Delete(ctx context.Context, path string) error {
	const op = "repository.nodeRepository.Delete"

	query := `
		DELETE FROM nodes
		WHERE path = $1
	`

	db := postgresql.GetDBClient(ctx, r.db)
	tag, err := db.Exec(ctx, query, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return kerrors.PathNotFound(path)
	}

	return nil
}

func (r *nodeRepository) Rename(ctx context.Context, oldPath, newPath string) (int64, error) {
	const op = "repository.nodeRepository.Rename"

	query := `
		UPDATE nodes
		SET path = $2 || substr(path, length($1) + 1)
		WHERE path = $1 OR left(path, length($3)) = $3
	`

	db := postgresql.GetDBClient(ctx, r.db)
	tag, err := db.Exec(ctx, query, oldPath, newPath, pathutil.ChildPrefix(oldPath))
	if err != nil {
		if postgresql.IsUniqueViolation(err) {
			return 0, kerrors.AlreadyExists(newPath)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *nodeRepository) Children(ctx context.Context, dir string) ([]models.Node, error) {
	const op = "repository.nodeRepository.Children"

	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE path <> $2
		  AND left(path, length($1)) = $1
		  AND strpos(substr(path, length($1) + 1), '/') = 0
		ORDER BY ino
	`

	nodes, err := r.queryNodes(ctx, query, pathutil.ChildPrefix(dir), dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nodes, nil
}

func (r *nodeRepository) Subtree(ctx context.Context, dir string) ([]models.Node, error) {
	const op = "repository.nodeRepository.Subtree"

	query := `
		SELECT ` + nodeColumns + `, content
		FROM nodes
		WHERE path <> $2
		  AND left(path, length($1)) = $1
		ORDER BY length(path), path
	`

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, pathutil.ChildPrefix(dir), dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		var node models.Node
		err := rows.Scan(
			&node.Path,
			&node.Ino,
			&node.Kind,
			&node.Owner,
			&node.Mode,
			&node.Size,
			&node.CreatedAt,
			&node.ModifiedAt,
			&node.Content,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		nodes = append(nodes, node)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return nodes, nil
}

func (r *nodeRepository) HasDescendants(ctx context.Context, dir string) (bool, error) {
	const op = "repository.nodeRepository.HasDescendants"

	query := `
		SELECT EXISTS(
			SELECT 1
			FROM nodes
			WHERE path <> $2 AND left(path, length($1)) = $1
		)
	`

	var exists bool
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, pathutil.ChildPrefix(dir), dir).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (r *nodeRepository) queryNodes(ctx context.Context, query string, args ...any) ([]models.Node, error) {
	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		var node models.Node
		if err := scanNode(rows, &node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}
