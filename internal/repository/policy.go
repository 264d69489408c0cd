package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

// PolicyRepository persists the MAC mode and rule table. A rule is stored
// as one row per operation bucket.
type PolicyRepository interface {
	// Mode returns the stored mode and false when none has been stored yet.
	Mode(ctx context.Context) (models.Mode, bool, error)
	SetMode(ctx context.Context, mode models.Mode) error
	Rule(ctx context.Context, path string) (*models.AccessRule, error)
	Rules(ctx context.Context) (map[string]models.AccessRule, error)
	// PutRule replaces every bucket of path; an empty rule deletes it.
	PutRule(ctx context.Context, path string, rule models.AccessRule) error
	ReplaceRules(ctx context.Context, rules map[string]models.AccessRule) error
}

type policyRepository struct {
	db postgresql.Client
}

func NewPolicyRepository(db postgresql.Client) PolicyRepository {
	return &policyRepository{db: db}
}

const modeSettingKey = "mode"

func (r *policyRepository) Mode(ctx context.Context) (models.Mode, bool, error) {
	const op = "repository.policyRepository.Mode"

	query := `
		SELECT value
		FROM mac_settings
		WHERE key = $1
	`

	var value string
	db := postgresql.GetDBClient(ctx, r.db)
	if err := db.QueryRow(ctx, query, modeSettingKey).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return models.Mode(value), true, nil
}

func (r *policyRepository) SetMode(ctx context.Context, mode models.Mode) error {
	const op = "repository.policyRepository.SetMode"

	query := `
		INSERT INTO mac_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value
	`

	db := postgresql.GetDBClient(ctx, r.db)
	if _, err := db.Exec(ctx, query, modeSettingKey, string(mode)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *policyRepository) Rule(ctx context.Context, path string) (*models.AccessRule, error) {
	const op = "repository.policyRepository.Rule"

	query := `
		SELECT path, operation, kind, roles
		FROM mac_rules
		WHERE path = $1
	`

	rules, err := r.queryRules(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rule, ok := rules[path]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

func (r *policyRepository) Rules(ctx context.Context) (map[string]models.AccessRule, error) {
	const op = "repository.policyRepository.Rules"

	query := `
		SELECT path, operation, kind, roles
		FROM mac_rules
		ORDER BY path, operation
	`

	rules, err := r.queryRules(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rules, nil
}

func (r *policyRepository) PutRule(ctx context.Context, path string, rule models.AccessRule) error {
	const op = "repository.policyRepository.PutRule"

	err := postgresql.WithTransaction(ctx, r.db, func(ctx context.Context) error {
		db := postgresql.GetDBClient(ctx, r.db)

		if _, err := db.Exec(ctx, `DELETE FROM mac_rules WHERE path = $1`, path); err != nil {
			return err
		}

		return r.insertRule(ctx, db, path, rule)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *policyRepository) ReplaceRules(ctx context.Context, rules map[string]models.AccessRule) error {
	const op = "repository.policyRepository.ReplaceRules"

	err := postgresql.WithTransaction(ctx, r.db, func(ctx context.Context) error {
		db := postgresql.GetDBClient(ctx, r.db)

		if _, err := db.Exec(ctx, `DELETE FROM mac_rules`); err != nil {
			return err
		}

		for path, rule := range rules {
			if err := r.insertRule(ctx, db, path, rule); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *policyRepository) insertRule(ctx context.Context, db postgresql.Client, path string, rule models.AccessRule) error {
	query := `
		INSERT INTO mac_rules (path, operation, kind, roles)
		VALUES ($1, $2, $3, $4)
	`

	for op, roles := range rule.Roles {
		if roles == nil {
			roles = []string{}
		}
		if _, err := db.Exec(ctx, query, path, string(op), int16(rule.Kind), roles); err != nil {
			return err
		}
	}

	return nil
}

func (r *policyRepository) queryRules(ctx context.Context, query string, args ...any) (map[string]models.AccessRule, error) {
	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make(map[string]models.AccessRule)
	for rows.Next() {
		var (
			path, operation string
			kind            int16
			roles           []string
		)
		if err := rows.Scan(&path, &operation, &kind, &roles); err != nil {
			return nil, err
		}

		rule, ok := rules[path]
		if !ok {
			rule = models.AccessRule{Kind: models.Kind(kind), Roles: make(map[models.Operation][]string)}
		}
		if roles == nil {
			roles = []string{}
		}
		rule.Roles[models.Operation(operation)] = roles
		rules[path] = rule
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}
