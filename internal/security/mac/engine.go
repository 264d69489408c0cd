// Package mac implements the mandatory access control layer: a policy table
// keyed by path, a global enforcing/permissive mode and an audit trail with
// one record per evaluation.
package mac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/S1riyS/tnfs/internal/diagnostics"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/pkg/clock"
	"github.com/S1riyS/tnfs/pkg/logging"
	"github.com/S1riyS/tnfs/pkg/logging/slogext"
)

// Denial is returned by CheckAccess when an enforcing policy refuses access.
// It matches kerrors.ErrAccessDenied and carries the audit record, which
// the caller must persist again if its transaction is rolled back.
type Denial struct {
	Record models.AuditRecord
	fault  *kerrors.Fault
}

func (d *Denial) Error() string { return d.fault.Error() }

func (d *Denial) Unwrap() error { return d.fault }

type Deps struct {
	Repos repository.Repositories
	// Mirror may be nil.
	Mirror *Mirror
	// InitialMode is used until a mode has been stored.
	InitialMode models.Mode
	Clock       clock.Clock
	Sink        diagnostics.Sink
}

type Engine struct {
	tx          repository.Transactor
	nodes       repository.NodeRepository
	policy      repository.PolicyRepository
	audit       repository.AuditRepository
	mirror      *Mirror
	initialMode models.Mode
	clock       clock.Clock
	sink        diagnostics.Sink
}

func NewEngine(deps Deps) *Engine {
	e := &Engine{
		tx:          deps.Repos.Tx,
		nodes:       deps.Repos.Nodes,
		policy:      deps.Repos.Policy,
		audit:       deps.Repos.Audit,
		mirror:      deps.Mirror,
		initialMode: deps.InitialMode,
		clock:       deps.Clock,
		sink:        deps.Sink,
	}
	if e.initialMode == "" {
		e.initialMode = models.ModeEnforcing
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.sink == nil {
		e.sink = diagnostics.LogSink{}
	}
	return e
}

// Mode returns the current mode.
func (e *Engine) Mode(ctx context.Context) (models.Mode, error) {
	const op = "mac.Engine.Mode"

	mode, set, err := e.policy.Mode(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !set {
		return e.initialMode, nil
	}
	return mode, nil
}

// SetMode switches between enforcing and permissive. Any other literal is
// rejected.
func (e *Engine) SetMode(ctx context.Context, literal string) error {
	const op = "mac.Engine.SetMode"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	mode, err := models.ParseMode(literal)
	if err != nil {
		logger.Warn("Invalid SELinux mode", slog.String("mode", literal))
		return e.fail(ctx, err)
	}

	err = e.mutate(ctx, func(ctx context.Context) error {
		return e.policy.SetMode(ctx, mode)
	})
	if err != nil {
		return e.fail(ctx, fmt.Errorf("%s: %w", op, err))
	}

	logger.Info("SELinux mode set", slog.String("mode", string(mode)))
	return nil
}

// CheckAccess evaluates operation on path for principal and appends one
// audit record with what the policy decided. In permissive mode access is
// always granted afterwards. In enforcing mode a refusal is returned as a
// *Denial.
func (e *Engine) CheckAccess(ctx context.Context, path string, operation models.Operation, principal models.Principal) (bool, error) {
	const op = "mac.Engine.CheckAccess"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if _, err := models.ParseOperation(string(operation)); err != nil {
		return false, err
	}

	if operation != models.OpWrite {
		node, err := e.nodes.Get(ctx, path)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		if node == nil {
			return false, kerrors.FileNotFound(path)
		}
	}

	rule, err := e.resolveRule(ctx, path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	granted := principal.Role == models.RootRole || (rule != nil && rule.Allows(operation, principal.Role))

	mode, err := e.Mode(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	record := models.AuditRecord{
		SessionID: principal.SessionID,
		Actor:     principal.Actor,
		Role:      principal.Role,
		Path:      path,
		Operation: operation,
		Result:    models.AuditDenied,
		Timestamp: e.clock.Now(),
		Mode:      mode,
	}
	if granted {
		record.Result = models.AuditGranted
	}

	if err := e.audit.Append(ctx, &record); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	attrs := []any{
		slog.String("path", path),
		slog.String("operation", string(operation)),
		slog.String("actor", principal.Actor),
		slog.String("role", principal.Role),
		slog.String("mode", string(mode)),
	}

	if granted {
		logger.Debug("SELinux access granted", attrs...)
		return true, nil
	}

	details := fmt.Sprintf("denied %s on %s for %s (%s)", operation, path, principal.Actor, principal.Role)

	if mode == models.ModePermissive {
		logger.Info("SELinux denial overridden by permissive mode", attrs...)
		e.sink.Report(ctx, diagnostics.Event{
			Category: kerrors.CategorySELinux,
			Code:     kerrors.CodeAccessDenied,
			Message:  kerrors.Message(kerrors.CodeAccessDenied),
			Details:  details + " (permissive)",
		})
		return true, nil
	}

	logger.Warn("SELinux access denied", attrs...)
	return false, &Denial{Record: record, fault: kerrors.AccessDenied(details)}
}

// resolveRule returns the rule for path, else the rule for its parent
// directory, else nil.
func (e *Engine) resolveRule(ctx context.Context, path string) (*models.AccessRule, error) {
	rule, err := e.policy.Rule(ctx, path)
	if err != nil || rule != nil {
		return rule, err
	}

	parent := pathutil.Dir(path)
	if parent == path {
		return nil, nil
	}
	return e.policy.Rule(ctx, parent)
}

// PersistDenial re-appends the audit record of a *Denial found in err. Call
// it after the transaction that produced the denial has been rolled back.
func (e *Engine) PersistDenial(ctx context.Context, err error) error {
	const op = "mac.Engine.PersistDenial"

	var denial *Denial
	if !errors.As(err, &denial) {
		return nil
	}

	record := denial.Record
	record.ID = 0
	if err := e.audit.Append(ctx, &record); err != nil {
		logger := logging.GetLoggerFromContextWithOp(ctx, op)
		logger.Error("Failed to persist audit record", slogext.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AddRule merges roles into the operation bucket of the rule at path,
// creating the rule with empty buckets for every operation if needed.
func (e *Engine) AddRule(ctx context.Context, path string, operation models.Operation, roles []string, kind models.Kind) error {
	const op = "mac.Engine.AddRule"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return e.fail(ctx, err)
	}
	if _, err := models.ParseOperation(string(operation)); err != nil {
		return e.fail(ctx, err)
	}

	err = e.mutate(ctx, func(ctx context.Context) error {
		rule, err := e.policy.Rule(ctx, path)
		if err != nil {
			return err
		}

		if rule == nil {
			fresh := models.NewAccessRule(kind)
			rule = &fresh
		}
		rule.Kind = kind
		rule.Merge(operation, roles)

		return e.policy.PutRule(ctx, path, *rule)
	})
	if err != nil {
		return e.fail(ctx, fmt.Errorf("%s: %w", op, err))
	}

	logger.Info("Added SELinux rule",
		slog.String("path", path),
		slog.String("operation", string(operation)),
		slog.Any("roles", roles),
	)
	return nil
}

// RemoveRule subtracts roles from the operation bucket at path. An emptied
// bucket is dropped, and so is an emptied rule.
func (e *Engine) RemoveRule(ctx context.Context, path string, operation models.Operation, roles []string) error {
	const op = "mac.Engine.RemoveRule"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	path, err := pathutil.Clean(path)
	if err != nil {
		return e.fail(ctx, err)
	}
	if _, err := models.ParseOperation(string(operation)); err != nil {
		return e.fail(ctx, err)
	}

	err = e.mutate(ctx, func(ctx context.Context) error {
		rule, err := e.policy.Rule(ctx, path)
		if err != nil {
			return err
		}
		if rule == nil || !rule.Has(operation) {
			return kerrors.RuleNotFound(fmt.Sprintf("no rule for %s on %s", operation, path))
		}

		rule.Subtract(operation, roles)
		return e.policy.PutRule(ctx, path, *rule)
	})
	if err != nil {
		if errors.Is(err, kerrors.ErrRuleNotFound) {
			return e.fail(ctx, err)
		}
		return e.fail(ctx, fmt.Errorf("%s: %w", op, err))
	}

	logger.Info("Removed SELinux rule",
		slog.String("path", path),
		slog.String("operation", string(operation)),
		slog.Any("roles", roles),
	)
	return nil
}

func (e *Engine) ListRules(ctx context.Context) (map[string]models.AccessRule, error) {
	const op = "mac.Engine.ListRules"

	rules, err := e.policy.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rules, nil
}

// Policy returns the current mode together with every rule.
func (e *Engine) Policy(ctx context.Context) (models.AccessPolicy, error) {
	const op = "mac.Engine.Policy"

	var policy models.AccessPolicy
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		mode, err := e.Mode(ctx)
		if err != nil {
			return err
		}
		rules, err := e.policy.Rules(ctx)
		if err != nil {
			return err
		}
		policy = models.AccessPolicy{Mode: mode, Rules: rules}
		return nil
	})
	if err != nil {
		return models.AccessPolicy{}, fmt.Errorf("%s: %w", op, err)
	}
	return policy, nil
}

// ResetPolicies restores the compiled-in rule set and forces permissive mode.
func (e *Engine) ResetPolicies(ctx context.Context) error {
	const op = "mac.Engine.ResetPolicies"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	defaults := models.DefaultPolicy()
	if err := e.replace(ctx, defaults); err != nil {
		return e.fail(ctx, fmt.Errorf("%s: %w", op, err))
	}

	logger.Info("SELinux policies reset to default")
	return nil
}

// Bootstrap seeds an empty policy store on first start, from the mirror file
// when one exists and from the compiled-in defaults otherwise. A store that
// already holds a mode is left untouched.
func (e *Engine) Bootstrap(ctx context.Context) error {
	const op = "mac.Engine.Bootstrap"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	_, set, err := e.policy.Mode(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if set {
		logger.Debug("SELinux policy already initialised")
		return nil
	}

	policy, found, err := e.mirror.Load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		defaults := models.DefaultPolicy()
		defaults.Mode = e.initialMode
		policy = &defaults
	}

	if err := e.replace(ctx, *policy); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("SELinux initialised",
		slog.String("mode", string(policy.Mode)),
		slog.Int("rules", len(policy.Rules)),
		slog.Bool("from_mirror", found),
	)
	return nil
}

// ImportMirror replaces the stored policy with the contents of the mirror
// file, typically after it was edited by hand.
func (e *Engine) ImportMirror(ctx context.Context) (models.AccessPolicy, error) {
	const op = "mac.Engine.ImportMirror"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	policy, found, err := e.mirror.Load()
	if err != nil {
		return models.AccessPolicy{}, e.fail(ctx, kerrors.Wrap(kerrors.KindInvalidArgument, kerrors.CategorySELinux,
			kerrors.CodeInvalidValue, "policy mirror", err))
	}
	if !found {
		return models.AccessPolicy{}, e.fail(ctx, kerrors.PathNotFound(e.mirror.Path()))
	}

	if err := e.replace(ctx, *policy); err != nil {
		return models.AccessPolicy{}, e.fail(ctx, fmt.Errorf("%s: %w", op, err))
	}

	logger.Info("SELinux policy imported",
		slog.String("file", e.mirror.Path()),
		slog.Int("rules", len(policy.Rules)),
	)
	return *policy, nil
}

// Audit lists the most recent audit records, newest first.
func (e *Engine) Audit(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	const op = "mac.Engine.Audit"

	records, err := e.audit.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

// fail reports err to the diagnostics sink and returns it unchanged.
func (e *Engine) fail(ctx context.Context, err error) error {
	e.sink.Report(ctx, diagnostics.FromError(err))
	return err
}

func (e *Engine) replace(ctx context.Context, policy models.AccessPolicy) error {
	return e.mutate(ctx, func(ctx context.Context) error {
		if err := e.policy.ReplaceRules(ctx, policy.Rules); err != nil {
			return err
		}
		return e.policy.SetMode(ctx, policy.Mode)
	})
}

// mutate applies fn in one transaction and rewrites the mirror once it has
// committed. A failed mirror write is logged; the stored policy stands.
func (e *Engine) mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	const op = "mac.Engine.mutate"

	var snapshot models.AccessPolicy
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}

		mode, err := e.Mode(ctx)
		if err != nil {
			return err
		}
		rules, err := e.policy.Rules(ctx)
		if err != nil {
			return err
		}
		snapshot = models.AccessPolicy{Mode: mode, Rules: rules}
		return nil
	})
	if err != nil {
		return err
	}

	if err := e.mirror.Save(snapshot); err != nil {
		logger := logging.GetLoggerFromContextWithOp(ctx, op)
		logger.Error("Failed to write policy mirror",
			slog.String("file", e.mirror.Path()),
			slogext.Err(err),
		)
		e.sink.Report(ctx, diagnostics.FromError(err))
	}
	return nil
}
