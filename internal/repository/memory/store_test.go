package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
)

func seed(t *testing.T, s *Store, paths ...string) {
	t.Helper()

	ctx := context.Background()
	repos := s.Repositories()
	for _, p := range paths {
		ino, err := repos.Inodes.Allocate(ctx)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		err = repos.Nodes.Create(ctx, &models.Node{Path: p, Ino: ino, Kind: models.KindDirectory, Owner: "root", Mode: 0o755})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", p, err)
		}
	}
}

func TestWithinTransaction_RollbackRestoresTables(t *testing.T) {
	s := New(time.Second)
	repos := s.Repositories()
	ctx := context.Background()
	seed(t, s, "/", "/home")

	boom := errors.New("boom")
	err := repos.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := repos.Inodes.Allocate(ctx); err != nil {
			return err
		}
		if err := repos.Nodes.Delete(ctx, "/home"); err != nil {
			return err
		}
		if err := repos.Journal.Append(ctx, &models.JournalEntry{Operation: "remove", Path: "/home"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTransaction() error = %v, want boom", err)
	}

	if n, _ := repos.Nodes.Get(ctx, "/home"); n == nil {
		t.Error("/home should be restored after rollback")
	}
	if entries, _ := repos.Journal.Recent(ctx, 10); len(entries) != 0 {
		t.Errorf("journal = %v, want empty", entries)
	}

	ino, err := repos.Inodes.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if ino != 3 {
		t.Errorf("Allocate() = %d, want 3 after rolled back allocation", ino)
	}
}

func TestWithinTransaction_Timeout(t *testing.T) {
	s := New(20 * time.Millisecond)
	repos := s.Repositories()
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = repos.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	err := repos.Tx.WithinTransaction(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, kerrors.ErrTimeout) {
		t.Errorf("WithinTransaction() error = %v, want Timeout", err)
	}

	if _, err := repos.Nodes.Get(ctx, "/"); !errors.Is(err, kerrors.ErrTimeout) {
		t.Errorf("Get() outside a transaction error = %v, want Timeout", err)
	}
}

func TestWithinTransaction_Nested(t *testing.T) {
	s := New(time.Second)
	repos := s.Repositories()
	ctx := context.Background()

	err := repos.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return repos.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			_, err := repos.Inodes.Allocate(ctx)
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested WithinTransaction() error = %v", err)
	}
}

func TestInodes_ReleaseNeverReuses(t *testing.T) {
	s := New(0)
	repos := s.Repositories()
	ctx := context.Background()

	first, _ := repos.Inodes.Allocate(ctx)
	if err := repos.Inodes.Release(ctx, first); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := repos.Inodes.Release(ctx, first); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	in, err := repos.Inodes.Get(ctx, first)
	if err != nil || in == nil {
		t.Fatalf("Get() = %v, %v", in, err)
	}
	if in.RefCount != 0 {
		t.Errorf("RefCount = %d, want 0", in.RefCount)
	}

	second, _ := repos.Inodes.Allocate(ctx)
	if second <= first {
		t.Errorf("Allocate() = %d, want > %d", second, first)
	}
}

func TestJournal_RecentNewestFirst(t *testing.T) {
	s := New(0)
	repos := s.Repositories()
	ctx := context.Background()

	for _, p := range []string{"/a", "/b", "/a"} {
		if err := repos.Journal.Append(ctx, &models.JournalEntry{Operation: "create", Path: p}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recent, _ := repos.Journal.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != 3 || recent[1].ID != 2 {
		t.Errorf("Recent(2) = %+v", recent)
	}

	history, _ := repos.Journal.ForPath(ctx, "/a", 10)
	if len(history) != 2 || history[0].ID != 3 || history[1].ID != 1 {
		t.Errorf("ForPath(/a) = %+v", history)
	}
}

func TestPolicy_PutEmptyRuleDeletes(t *testing.T) {
	s := New(0)
	repos := s.Repositories()
	ctx := context.Background()

	rule := models.NewAccessRule(models.KindFile)
	rule.Merge(models.OpRead, []string{"user"})
	if err := repos.Policy.PutRule(ctx, "/f", rule); err != nil {
		t.Fatalf("PutRule() error = %v", err)
	}

	got, _ := repos.Policy.Rule(ctx, "/f")
	if got == nil || !got.Allows(models.OpRead, "user") {
		t.Fatalf("Rule(/f) = %+v", got)
	}
	got.Merge(models.OpWrite, []string{"guest"})
	if stored, _ := repos.Policy.Rule(ctx, "/f"); stored.Allows(models.OpWrite, "guest") {
		t.Error("Rule() must return a copy")
	}

	if err := repos.Policy.PutRule(ctx, "/f", models.AccessRule{}); err != nil {
		t.Fatalf("PutRule(empty) error = %v", err)
	}
	if got, _ := repos.Policy.Rule(ctx, "/f"); got != nil {
		t.Errorf("Rule(/f) = %+v, want nil", got)
	}

	if _, set, _ := repos.Policy.Mode(ctx); set {
		t.Error("mode should be unset on a fresh store")
	}
}
