package postgresql

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, true},
		{"serialization", fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "40001"}), true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"deadline", fmt.Errorf("acquire: %w", context.DeadlineExceeded), true},
		{"unique", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsContention(tt.err); got != tt.want {
				t.Errorf("IsContention() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionName(t *testing.T) {
	if got := ConditionName(&pgconn.PgError{Code: "23505"}); got != "unique_violation" {
		t.Errorf("ConditionName() = %q, want unique_violation", got)
	}
	if got := ConditionName(errors.New("plain")); got != "" {
		t.Errorf("ConditionName(plain) = %q, want empty", got)
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Error("IsUniqueViolation() = false, want true")
	}
}
