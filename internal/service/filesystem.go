package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/tnfs/internal/cache"
	"github.com/S1riyS/tnfs/internal/diagnostics"
	"github.com/S1riyS/tnfs/internal/journal"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/internal/security/dac"
	"github.com/S1riyS/tnfs/internal/security/mac"
	"github.com/S1riyS/tnfs/pkg/clock"
	"github.com/S1riyS/tnfs/pkg/logging"
	"github.com/S1riyS/tnfs/pkg/logging/slogext"
)

const (
	DefaultDirMode  uint32 = 0o755
	DefaultFileMode uint32 = 0o644
)

// FileSystemService is the public namespace API. Every call runs as one
// transaction: MAC check, DAC check, store operation and journal append
// either all apply or none do. The content cache is updated after commit.
type FileSystemService interface {
	Init(ctx context.Context, principal models.Principal) error
	CreateDirectory(ctx context.Context, principal models.Principal, path, owner string, mode uint32) error
	CreateFile(ctx context.Context, principal models.Principal, path string, content []byte, owner string, mode uint32) error
	ReadFile(ctx context.Context, principal models.Principal, path string) ([]byte, error)
	WriteFile(ctx context.Context, principal models.Principal, path string, content []byte) error
	Remove(ctx context.Context, principal models.Principal, path string) error
	RenameFile(ctx context.Context, principal models.Principal, oldPath, newPath string) error
	RenameDirectory(ctx context.Context, principal models.Principal, oldPath, newPath string) error
	MoveFile(ctx context.Context, principal models.Principal, src, dst string) error
	MoveDirectory(ctx context.Context, principal models.Principal, src, dst string) error
	CopyFile(ctx context.Context, principal models.Principal, src, dst string) error
	CopyDirectory(ctx context.Context, principal models.Principal, src, dst string) error
	// ListDirectory returns child names in discovery order.
	ListDirectory(ctx context.Context, principal models.Principal, path string) ([]string, error)
	Chmod(ctx context.Context, principal models.Principal, path string, mode uint32) error
	Stat(ctx context.Context, principal models.Principal, path string) (*models.Node, error)
}

type fileSystemService struct {
	tx      repository.Transactor
	nodes   repository.NodeRepository
	inodes  repository.InodeRepository
	mac     *mac.Engine
	dac     *dac.Evaluator
	journal *journal.Journal
	cache   *cache.Cache
	clock   clock.Clock
	sink    diagnostics.Sink
}

func NewFileSystemService(
	repos repository.Repositories,
	macEngine *mac.Engine,
	opJournal *journal.Journal,
	contentCache *cache.Cache,
	clk clock.Clock,
	sink diagnostics.Sink,
) FileSystemService {
	if clk == nil {
		clk = clock.Real()
	}
	if sink == nil {
		sink = diagnostics.LogSink{}
	}
	return &fileSystemService{
		tx:      repos.Tx,
		nodes:   repos.Nodes,
		inodes:  repos.Inodes,
		mac:     macEngine,
		dac:     dac.NewEvaluator(repos.Nodes),
		journal: opJournal,
		cache:   contentCache,
		clock:   clk,
		sink:    sink,
	}
}

// seedDirectories is the default layout created by Init, parents first.
var seedDirectories = []struct {
	path string
	mode uint32
}{
	{pathutil.Root, DefaultDirMode},
	{"/home", DefaultDirMode},
	{"/etc", DefaultDirMode},
	{"/bin", DefaultDirMode},
	{"/var", DefaultDirMode},
	{"/tmp", 0o777},
}

func (s *fileSystemService) Init(ctx context.Context, principal models.Principal) error {
	const op = "service.fileSystemService.Init"

	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	created := 0
	err := s.run(ctx, op, func(ctx context.Context) error {
		created = 0
		for _, dir := range seedDirectories {
			existing, err := s.nodes.Get(ctx, dir.path)
			if err != nil {
				return err
			}
			if existing != nil {
				if !existing.IsDir() {
					return kerrors.NotADirectory(dir.path)
				}
				continue
			}

			if err := s.createNode(ctx, dir.path, models.KindDirectory, nil, models.RootActor, dir.mode); err != nil {
				return err
			}
			if err := s.journal.Append(ctx, principal, journal.OpCreate, dir.path, "default structure"); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Default structure initialized", slog.Int("created", created))
	return nil
}

// run executes fn in one transaction and hands any failure to fail.
func (s *fileSystemService) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := s.tx.WithinTransaction(ctx, fn); err != nil {
		return s.fail(ctx, op, err)
	}
	return nil
}

// fail is the exit path of every rejected call. The audit record of a MAC
// denial is persisted again, since the rollback discarded it, and the fault
// is reported to the diagnostics sink. Faults are returned as is, other
// errors are wrapped with op.
func (s *fileSystemService) fail(ctx context.Context, op string, err error) error {
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if perr := s.mac.PersistDenial(ctx, err); perr != nil {
		logger.Error("Failed to persist denied audit record", slogext.Err(perr))
	}

	s.sink.Report(ctx, diagnostics.FromError(err))

	if _, isFault := kerrors.As(err); isFault {
		logger.Debug("Operation rejected", slogext.Err(err))
		return err
	}

	logger.Error("Operation failed", slogext.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

// authorize runs the MAC check. In permissive mode it never fails on policy
// grounds.
func (s *fileSystemService) authorize(ctx context.Context, principal models.Principal, path string, operation models.Operation) error {
	_, err := s.mac.CheckAccess(ctx, path, operation, principal)
	return err
}

// permit runs the DAC check and turns a refusal into PermissionDenied.
func (s *fileSystemService) permit(ctx context.Context, principal models.Principal, path string, operation models.Operation) error {
	ok, err := s.dac.Check(ctx, path, principal.Actor, operation)
	if err != nil {
		return err
	}
	if !ok {
		return kerrors.PermissionDenied(fmt.Sprintf("%s may not %s %s", principal.Actor, operation, path))
	}
	return nil
}

// lookup returns the node at path or NotFound.
func (s *fileSystemService) lookup(ctx context.Context, path string) (*models.Node, error) {
	node, err := s.nodes.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, kerrors.PathNotFound(path)
	}
	return node, nil
}

// lookupKind is lookup plus a kind check.
func (s *fileSystemService) lookupKind(ctx context.Context, path string, kind models.Kind) (*models.Node, error) {
	node, err := s.lookup(ctx, path)
	if err != nil {
		if kind == models.KindFile && kerrors.KindOf(err) == kerrors.KindNotFound {
			return nil, kerrors.FileNotFound(path)
		}
		return nil, err
	}
	return node, checkKind(node, kind)
}

func checkKind(node *models.Node, kind models.Kind) error {
	if node.Kind == kind {
		return nil
	}
	if node.IsDir() {
		return kerrors.IsADirectory(node.Path)
	}
	return kerrors.NotADirectory(node.Path)
}

// requireParent checks that the parent of path exists as a directory. A
// parent that is a file counts as missing.
func (s *fileSystemService) requireParent(ctx context.Context, path string) (string, error) {
	parent := pathutil.Dir(path)
	node, err := s.lookup(ctx, parent)
	if err != nil {
		return "", err
	}
	if !node.IsDir() {
		return "", kerrors.PathNotFound(parent)
	}
	return parent, nil
}

func (s *fileSystemService) requireAbsent(ctx context.Context, path string) error {
	existing, err := s.nodes.Get(ctx, path)
	if err != nil {
		return err
	}
	if existing != nil {
		return kerrors.AlreadyExists(path)
	}
	return nil
}

// createNode allocates an inode and stores a fresh node under it.
func (s *fileSystemService) createNode(ctx context.Context, path string, kind models.Kind, content []byte, owner string, mode uint32) error {
	ino, err := s.inodes.Allocate(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.nodes.Create(ctx, &models.Node{
		Path:       path,
		Ino:        ino,
		Kind:       kind,
		Owner:      owner,
		Mode:       mode,
		Content:    content,
		Size:       int64(len(content)),
		CreatedAt:  now,
		ModifiedAt: now,
	})
}

func validateMode(mode uint32) error {
	if mode > models.MaxMode {
		return kerrors.InvalidArgument(fmt.Sprintf("mode bits out of range: %#o", mode))
	}
	return nil
}
