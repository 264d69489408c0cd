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
	"github.com/S1riyS/tnfs/pkg/logging"
)

func (s *fileSystemService) RenameFile(ctx context.Context, principal models.Principal, oldPath, newPath string) error {
	const op = "service.fileSystemService.RenameFile"
	return s.relocate(ctx, op, principal, oldPath, newPath, models.KindFile, journal.OpRename)
}

func (s *fileSystemService) RenameDirectory(ctx context.Context, principal models.Principal, oldPath, newPath string) error {
	const op = "service.fileSystemService.RenameDirectory"
	return s.relocate(ctx, op, principal, oldPath, newPath, models.KindDirectory, journal.OpRename)
}

// MoveFile is RenameFile journaled as a move.
func (s *fileSystemService) MoveFile(ctx context.Context, principal models.Principal, src, dst string) error {
	const op = "service.fileSystemService.MoveFile"
	return s.relocate(ctx, op, principal, src, dst, models.KindFile, journal.OpMove)
}

// MoveDirectory is RenameDirectory journaled as a move.
func (s *fileSystemService) MoveDirectory(ctx context.Context, principal models.Principal, src, dst string) error {
	const op = "service.fileSystemService.MoveDirectory"
	return s.relocate(ctx, op, principal, src, dst, models.KindDirectory, journal.OpMove)
}

// relocate rewrites oldPath, and every descendant of a directory, to live
// under newPath. Inode ids are kept.
func (s *fileSystemService) relocate(
	ctx context.Context,
	op string,
	principal models.Principal,
	oldPath, newPath string,
	kind models.Kind,
	label string,
) error {
	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	oldPath, newPath, err := cleanPair(oldPath, newPath)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if oldPath == pathutil.Root || newPath == pathutil.Root {
		return s.fail(ctx, op, kerrors.InvalidArgument("cannot rename /"))
	}
	if pathutil.IsDescendant(newPath, oldPath) {
		return s.fail(ctx, op, kerrors.InvalidArgument(fmt.Sprintf("cannot move %s into itself", oldPath)))
	}

	logger.Debug("Relocate", slog.String("from", oldPath), slog.String("to", newPath), slog.String("label", label))

	var (
		moved int64
		seq   cache.Seq
	)
	err = s.run(ctx, op, func(ctx context.Context) error {
		if err := s.authorize(ctx, principal, oldPath, models.OpWrite); err != nil {
			return err
		}
		if err := s.authorize(ctx, principal, newPath, models.OpWrite); err != nil {
			return err
		}

		if _, err := s.lookupKind(ctx, oldPath, kind); err != nil {
			return err
		}
		newParent, err := s.requireParent(ctx, newPath)
		if err != nil {
			return err
		}

		if err := s.permit(ctx, principal, pathutil.Dir(oldPath), models.OpWrite); err != nil {
			return err
		}
		if err := s.permit(ctx, principal, newParent, models.OpWrite); err != nil {
			return err
		}
		if err := s.requireAbsent(ctx, newPath); err != nil {
			return err
		}

		moved, err = s.nodes.Rename(ctx, oldPath, newPath)
		if err != nil {
			return err
		}
		seq = s.cache.Reserve()

		return s.journal.Append(ctx, principal, label, oldPath, fmt.Sprintf("-> %s (%d nodes)", newPath, moved))
	})
	if err != nil {
		return err
	}

	s.cache.Move(oldPath, newPath, seq)

	logger.Debug("Relocated", slog.String("from", oldPath), slog.String("to", newPath), slog.Int64("nodes", moved))
	return nil
}

func (s *fileSystemService) CopyFile(ctx context.Context, principal models.Principal, src, dst string) error {
	const op = "service.fileSystemService.CopyFile"
	return s.duplicate(ctx, op, principal, src, dst, models.KindFile)
}

func (s *fileSystemService) CopyDirectory(ctx context.Context, principal models.Principal, src, dst string) error {
	const op = "service.fileSystemService.CopyDirectory"
	return s.duplicate(ctx, op, principal, src, dst, models.KindDirectory)
}

// duplicate clones src, and every descendant of a directory, under dst. Each
// clone gets a fresh inode and keeps the owner, mode, content and
// timestamps of its source.
func (s *fileSystemService) duplicate(
	ctx context.Context,
	op string,
	principal models.Principal,
	src, dst string,
	kind models.Kind,
) error {
	ctx = logging.EnsureRequestID(ctx)
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	src, dst, err := cleanPair(src, dst)
	if err != nil {
		return s.fail(ctx, op, err)
	}
	if src == dst || pathutil.IsDescendant(dst, src) {
		return s.fail(ctx, op, kerrors.InvalidArgument(fmt.Sprintf("cannot copy %s into itself", src)))
	}

	logger.Debug("Copy", slog.String("from", src), slog.String("to", dst))

	var (
		copied int
		seq    cache.Seq
	)
	err = s.run(ctx, op, func(ctx context.Context) error {
		copied = 0

		if err := s.authorize(ctx, principal, src, models.OpRead); err != nil {
			return err
		}
		if err := s.authorize(ctx, principal, pathutil.Dir(dst), models.OpWrite); err != nil {
			return err
		}

		source, err := s.lookupKind(ctx, src, kind)
		if err != nil {
			return err
		}
		dstParent, err := s.requireParent(ctx, dst)
		if err != nil {
			return err
		}

		if err := s.permit(ctx, principal, src, models.OpRead); err != nil {
			return err
		}
		if err := s.permit(ctx, principal, dstParent, models.OpWrite); err != nil {
			return err
		}
		if err := s.requireAbsent(ctx, dst); err != nil {
			return err
		}

		if source.Kind == models.KindFile {
			content, err := s.nodes.Content(ctx, src)
			if err != nil {
				return err
			}
			source.Content = content
		}

		batch := []models.Node{*source}
		if source.IsDir() {
			descendants, err := s.nodes.Subtree(ctx, src)
			if err != nil {
				return err
			}
			batch = append(batch, descendants...)
		}

		for _, node := range batch {
			if err := s.cloneNode(ctx, node, pathutil.Rebase(node.Path, src, dst)); err != nil {
				return err
			}
			copied++
		}
		seq = s.cache.Reserve()

		return s.journal.Append(ctx, principal, journal.OpCopy, src, fmt.Sprintf("-> %s (%d nodes)", dst, copied))
	})
	if err != nil {
		return err
	}

	s.cache.Drop(dst, seq)

	logger.Debug("Copied", slog.String("from", src), slog.String("to", dst), slog.Int("nodes", copied))
	return nil
}

func (s *fileSystemService) cloneNode(ctx context.Context, node models.Node, path string) error {
	ino, err := s.inodes.Allocate(ctx)
	if err != nil {
		return err
	}

	node.Path = path
	node.Ino = ino
	return s.nodes.Create(ctx, &node)
}

func cleanPair(a, b string) (string, string, error) {
	a, err := pathutil.Clean(a)
	if err != nil {
		return "", "", err
	}
	b, err = pathutil.Clean(b)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}
