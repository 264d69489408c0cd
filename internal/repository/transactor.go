package repository

import "context"

// Transactor runs fn as one all-or-nothing unit. Repository calls made with
// the context passed to fn join that unit.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories bundles every table the namespace engine touches.
type Repositories struct {
	Tx      Transactor
	Nodes   NodeRepository
	Inodes  InodeRepository
	Journal JournalRepository
	Audit   AuditRepository
	Policy  PolicyRepository
}
