// Package memory is the in-process storage driver. It keeps every table in
// maps guarded by a single-writer lock and implements the same repository
// contracts as the PostgreSQL driver, including transactional rollback.
package memory

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/pkg/logging"
	"github.com/S1riyS/tnfs/pkg/logging/slogext"
)

type txKey struct{}

type state struct {
	nodes   map[string]models.Node
	inodes  map[int64]models.Inode
	nextIno int64
	journal []models.JournalEntry
	audit   []models.AuditRecord
	rules   map[string]models.AccessRule
	mode    models.Mode
	modeSet bool
}

func (st *state) clone() state {
	c := *st
	c.nodes = maps.Clone(st.nodes)
	c.inodes = maps.Clone(st.inodes)
	c.rules = make(map[string]models.AccessRule, len(st.rules))
	for path, rule := range st.rules {
		c.rules[path] = rule.Clone()
	}
	// Journal and audit are append-only, so truncating to the saved length
	// on restore is enough.
	return c
}

// Store holds all tables. Only one unit of work runs at a time; waiting for
// the lock is bounded by lockTimeout.
type Store struct {
	sem         chan struct{}
	lockTimeout time.Duration
	st          state
}

// New returns an empty store. A zero lockTimeout waits until ctx is done.
func New(lockTimeout time.Duration) *Store {
	return &Store{
		sem:         make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		st: state{
			nodes:   make(map[string]models.Node),
			inodes:  make(map[int64]models.Inode),
			nextIno: repository.RootIno,
			rules:   make(map[string]models.AccessRule),
		},
	}
}

// Repositories wires every repository to s.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Tx:      s,
		Nodes:   &nodeRepository{s: s},
		Inodes:  &inodeRepository{s: s},
		Journal: &journalRepository{s: s},
		Audit:   &auditRepository{s: s},
		Policy:  &policyRepository{s: s},
	}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

func (s *Store) acquire(ctx context.Context) error {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return kerrors.Timeout(fmt.Sprintf("lock not acquired within %s", s.lockTimeout), ctx.Err())
	}
}

func (s *Store) release() {
	<-s.sem
}

// WithinTransaction runs fn holding the store lock. Any error returned by fn
// restores the tables to their state before the call.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	const op = "memory.Store.WithinTransaction"

	if s.inTx(ctx) {
		return fn(ctx)
	}

	if err := s.acquire(ctx); err != nil {
		logger := logging.GetLoggerFromContextWithOp(ctx, op)
		logger.Warn("Transaction aborted by contention", slogext.Err(err))
		return err
	}
	defer s.release()

	saved := s.st.clone()
	journalLen, auditLen := len(s.st.journal), len(s.st.audit)

	defer func() {
		if p := recover(); p != nil {
			s.restore(saved, journalLen, auditLen)
			panic(p)
		} else if err != nil {
			s.restore(saved, journalLen, auditLen)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) restore(saved state, journalLen, auditLen int) {
	saved.journal = s.st.journal[:journalLen]
	saved.audit = s.st.audit[:auditLen]
	s.st = saved
}

// do runs a single repository call, taking the lock unless the caller
// already holds it through a transaction.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(&s.st)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(&s.st)
}
