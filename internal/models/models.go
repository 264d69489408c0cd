package models

import (
	"time"
)

type Kind int16

const (
	KindDirectory Kind = 0
	KindFile      Kind = 1
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "directory"
}

type Inode struct {
	Ino      int64
	RefCount int
}

// Node is the metadata and content stored under a unique absolute path.
// Hierarchy is implied by the path; there are no parent pointers.
type Node struct {
	Path       string
	Ino        int64
	Kind       Kind
	Owner      string
	Mode       uint32
	Content    []byte
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

func (n *Node) IsDir() bool {
	return n.Kind == KindDirectory
}

const (
	RootActor = "root"
	RootRole  = "root"

	// MaxMode is the largest accepted mode: owner and other rwx triads.
	MaxMode uint32 = 0o777
)

// Principal is the already-resolved identity acting on a call.
type Principal struct {
	Actor     string
	Role      string
	SessionID int64
}

type JournalEntry struct {
	ID        int64
	Operation string
	Path      string
	Timestamp time.Time
	Details   string
	Actor     string
}

type AuditResult string

const (
	AuditGranted AuditResult = "granted"
	AuditDenied  AuditResult = "denied"
)

type AuditRecord struct {
	ID        int64
	SessionID int64
	Actor     string
	Role      string
	Path      string
	Operation Operation
	Result    AuditResult
	Timestamp time.Time
	Mode      Mode
}
