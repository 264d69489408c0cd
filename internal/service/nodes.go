package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/tnfs/internal/cache"
	"github.com/S1riyS/tnfs/internal/journal"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
	"github.com/S1riyS/tnfs/internal/security/dac"
	"github.com/S1riyS/tnfs/pkg/logging"
)

func (s *fileSystemService) CreateDirectory(ctx context.Context, principal models.Principal, path, owner string, mode uint32) error {
	const op = "service.fileSystemService.CreateDirectory"
	return s.create(ctx, op, principal, path, models.KindDirectory, nil, owner, mode)
}

func (s *fileSystemService) CreateFile(ctx context.Context, principal models.Principal, path string, content []byte, owner string, mode uint32) error {
	const op = "service.fileSystemService.CreateFile"
	return s.create(ctx, op, principal, path, models.KindFile, content, owner, mode)
}

func (s *fileSystemService) create(
	ctx context.Context,
	op string,
	principal models.Principal,
	path string,
	kind models.Kind,
	content []byte,
	owner string,
	mode uint32,
) error {
	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if err := validateMode(mode); err != nil {
		return s.fail(ctx, op, err)
	}
	if owner == "" {
		owner = principal.Actor
	}

	logger.Debug("Create",
		slog.String("path", path),
		slog.String("kind", kind.String()),
		slog.String("owner", owner),
		slog.String("mode", fmt.Sprintf("%#o", mode)),
	)

	var seq cache.Seq
	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, path, models.OpWrite); err != nil {
			return err
		}

		parent, err := s.requireParent(ctx, path)
		if err != nil {
			return err
		}
		if err := s.permit(ctx, principal, parent, models.OpWrite); err != nil {
			return err
		}
		if err := s.requireAbsent(ctx, path); err != nil {
			return err
		}

		if err := s.createNode(ctx, path, kind, content, owner, mode); err != nil {
			return err
		}
		seq = s.cache.Reserve()

		details := fmt.Sprintf("%s owner=%s mode=%#o", kind, owner, mode)
		return s.journal.Append(ctx, principal, journal.OpCreate, path, details)
	})
	if err != nil {
		return err
	}

	if kind == models.KindFile {
		s.cache.Put(path, content, seq)
	}

	logger.Debug("Created", slog.String("path", path))
	return nil
}

func (s *fileSystemService) ReadFile(ctx context.Context, principal models.Principal, path string) ([]byte, error) {
	const op = "service.fileSystemService.ReadFile"

	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	stamp := s.cache.Snapshot()

	var (
		data      []byte
		fromStore bool
	)
	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, path, models.OpRead); err != nil {
			return err
		}
		if _, err := s.lookupKind(ctx, path, models.KindFile); err != nil {
			return err
		}
		if err := s.permit(ctx, principal, path, models.OpRead); err != nil {
			return err
		}

		cached, hit := s.cache.Get(path)
		if hit {
			data, fromStore = cached, false
		} else {
			content, err := s.nodes.Content(ctx, path)
			if err != nil {
				return err
			}
			data, fromStore = content, true
		}

		return s.journal.Append(ctx, principal, journal.OpRead, path, fmt.Sprintf("size=%d", len(data)))
	})
	if err != nil {
		return nil, err
	}

	if fromStore {
		s.cache.Fill(path, data, stamp)
	}

	logger.Debug("Read", slog.String("path", path), slog.Int("size", len(data)), slog.Bool("cached", !fromStore))
	return data, nil
}

func (s *fileSystemService) WriteFile(ctx context.Context, principal models.Principal, path string, content []byte) error {
	const op = "service.fileSystemService.WriteFile"

	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return s.fail(ctx, op, err)
	}

	var seq cache.Seq
	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, path, models.OpWrite); err != nil {
			return err
		}
		if _, err := s.lookupKind(ctx, path, models.KindFile); err != nil {
			return err
		}
		if err := s.permit(ctx, principal, path, models.OpWrite); err != nil {
			return err
		}

		if err := s.nodes.UpdateContent(ctx, path, content, s.clock.Now()); err != nil {
			return err
		}
		seq = s.cache.Reserve()

		return s.journal.Append(ctx, principal, journal.OpWrite, path, fmt.Sprintf("size=%d", len(content)))
	})
	if err != nil {
		return err
	}

	s.cache.Put(path, content, seq)

	logger.Debug("Written", slog.String("path", path), slog.Int("size", len(content)))
	return nil
}

// Remove deletes a file or an empty directory and releases its inode.
func (s *fileSystemService) Remove(ctx context.Context, principal models.Principal, path string) error {
	const op = "service.fileSystemService.Remove"

	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if path == pathutil.Root {
		return s.fail(ctx, op, kerrors.InvalidArgument("cannot remove /"))
	}

	var seq cache.Seq
	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, path, models.OpDelete); err != nil {
			return err
		}

		node, err := s.lookup(ctx, path)
		if err != nil {
			return err
		}
		if err := s.permit(ctx, principal, pathutil.Dir(path), models.OpWrite); err != nil {
			return err
		}

		if node.IsDir() {
			busy, err := s.nodes.HasDescendants(ctx, path)
			if err != nil {
				return err
			}
			if busy {
				return kerrors.NotEmpty(path)
			}
		}

		if err := s.nodes.Delete(ctx, path); err != nil {
			return err
		}
		seq = s.cache.Reserve()
		if err := s.inodes.Release(ctx, node.Ino); err != nil {
			return err
		}

		return s.journal.Append(ctx, principal, journal.OpRemove, path, fmt.Sprintf("%s ino=%d", node.Kind, node.Ino))
	})
	if err != nil {
		return err
	}

	s.cache.Drop(path, seq)

	logger.Debug("Removed", slog.String("path", path))
	return nil
}

func (s *fileSystemService) ListDirectory(ctx context.Context, principal models.Principal, path string) ([]string, error) {
	const op = "service.fileSystemService.ListDirectory"

	ctx = logging.EnsureRequestID(ctx)

	path, err := pathutil.Clean(path)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	var names []string
	err = s.run(ctx, op, func(ctx context.Context) error {
		names = nil

		if err := s.authorize(ctx, principal, path, models.OpRead); err != nil {
			return err
		}
		if _, err := s.lookupKind(ctx, path, models.KindDirectory); err != nil {
			return err
		}
		if err := s.permit(ctx, principal, path, models.OpRead); err != nil {
			return err
		}

		children, err := s.nodes.Children(ctx, path)
		if err != nil {
			return err
		}
		for _, child := range children {
			names = append(names, pathutil.Base(child.Path))
		}

		return s.journal.Append(ctx, principal, journal.OpList, path, fmt.Sprintf("entries=%d", len(names)))
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

// Chmod changes mode bits. Only the owner or root may do so; the content
// cache is not affected.
func (s *fileSystemService) Chmod(ctx context.Context, principal models.Principal, path string, mode uint32) error {
	const op = "service.fileSystemService.Chmod"

	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if err := validateMode(mode); err != nil {
		return s.fail(ctx, op, err)
	}

	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, path, models.OpWrite); err != nil {
			return err
		}

		node, err := s.lookup(ctx, path)
		if err != nil {
			return err
		}
		if !dac.CanChangeMode(node, principal.Actor) {
			return kerrors.PermissionDenied(fmt.Sprintf("%s may not chmod %s owned by %s", principal.Actor, path, node.Owner))
		}

		if err := s.nodes.UpdateMode(ctx, path, mode, s.clock.Now()); err != nil {
			return err
		}

		details := fmt.Sprintf("%#o -> %#o", node.Mode, mode)
		return s.journal.Append(ctx, principal, journal.OpChmod, path, details)
	})
	if err != nil {
		return err
	}

	logger.Debug("Mode changed", slog.String("path", path), slog.String("mode", fmt.Sprintf("%#o", mode)))
	return nil
}

// Stat returns node metadata without content.
func (s *fileSystemService) Stat(ctx context.Context, principal models.Principal, path string) (*models.Node, error) {
	const op = "service.fileSystemService.Stat"

	ctx = logging.EnsureRequestID(ctx)

	path, err := pathutil.Clean(path)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}

	var node *models.Node
	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, path, models.OpRead); err != nil {
			return err
		}

		found, err := s.lookup(ctx, path)
		if err != nil {
			return err
		}
		node = found

		return s.journal.Append(ctx, principal, journal.OpStat, path, "")
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}
