// Package dac evaluates owner/mode-bit permissions. Mode bits carry an owner
// triad and an other triad; there is no group tier.
package dac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/pkg/logging"
)

// Operation is one of the three DAC operations. Delete is governed by MAC
// and by write on the parent directory, never by a DAC bit of its own.
type Operation = models.Operation

func requiredBit(op Operation) (uint32, bool) {
	switch op {
	case models.OpRead:
		return 4, true
	case models.OpWrite:
		return 2, true
	case models.OpExecute:
		return 1, true
	default:
		return 0, false
	}
}

// Allowed decides op for actor against a node's owner and mode. The owner
// and root are judged by the owner triad. Everyone else is judged by the
// other triad and is never granted write, whatever the bits say.
func Allowed(owner string, mode uint32, actor string, op Operation) bool {
	bit, ok := requiredBit(op)
	if !ok {
		return false
	}

	ownerBits := (mode >> 6) & 0o7
	otherBits := mode & 0o7

	if actor == owner || actor == models.RootActor {
		return ownerBits&bit == bit
	}

	if op != models.OpRead && op != models.OpExecute {
		return false
	}
	return otherBits&bit == bit
}

// CanChangeMode reports whether actor may chmod node.
func CanChangeMode(node *models.Node, actor string) bool {
	return actor == node.Owner || actor == models.RootActor
}

type Evaluator struct {
	nodes repository.NodeRepository
}

func NewEvaluator(nodes repository.NodeRepository) *Evaluator {
	return &Evaluator{nodes: nodes}
}

// Check looks up path and applies Allowed to it.
func (e *Evaluator) Check(ctx context.Context, path, actor string, operation Operation) (bool, error) {
	const op = "dac.Evaluator.Check"

	if _, ok := requiredBit(operation); !ok {
		return false, kerrors.InvalidArgument(fmt.Sprintf("unsupported DAC operation: %s", operation))
	}

	node, err := e.nodes.Get(ctx, path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if node == nil {
		return false, kerrors.PathNotFound(path)
	}

	allowed := Allowed(node.Owner, node.Mode, actor, operation)

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("DAC evaluated",
		slog.String("path", path),
		slog.String("actor", actor),
		slog.String("operation", string(operation)),
		slog.String("mode", fmt.Sprintf("%#o", node.Mode)),
		slog.Bool("allowed", allowed),
	)

	return allowed, nil
}
