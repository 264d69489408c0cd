package mac

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/S1riyS/tnfs/internal/diagnostics"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/internal/repository/memory"
	"github.com/S1riyS/tnfs/pkg/clock"
)

type fixture struct {
	engine *Engine
	repos  repository.Repositories
	mirror string
	sink   *diagnostics.Recorder
}

func newFixture(t *testing.T, mode models.Mode) *fixture {
	t.Helper()

	repos := memory.New(time.Second).Repositories()
	mirror := filepath.Join(t.TempDir(), "data", "selinux_policies.json")
	sink := &diagnostics.Recorder{}

	e := NewEngine(Deps{
		Repos:       repos,
		Mirror:      NewMirror(mirror),
		InitialMode: mode,
		Clock:       clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Sink:        sink,
	})

	ctx := context.Background()
	for i, p := range []string{"/", "/data", "/data/p"} {
		kind := models.KindDirectory
		if p == "/data/p" {
			kind = models.KindFile
		}
		if err := repos.Nodes.Create(ctx, &models.Node{Path: p, Ino: int64(i + 1), Kind: kind, Owner: "root", Mode: 0o755}); err != nil {
			t.Fatalf("Create(%s) error = %v", p, err)
		}
	}

	return &fixture{engine: e, repos: repos, mirror: mirror, sink: sink}
}

func (f *fixture) lastAudit(t *testing.T) models.AuditRecord {
	t.Helper()

	records, err := f.engine.Audit(context.Background(), 1)
	if err != nil || len(records) != 1 {
		t.Fatalf("Audit() = %v, %v", records, err)
	}
	return records[0]
}

var guest = models.Principal{Actor: "guest", Role: "guest", SessionID: 7}

func TestCheckAccess_EnforcingVersusPermissive(t *testing.T) {
	tests := []struct {
		mode      models.Mode
		wantOK    bool
		wantErr   error
		wantEvent bool
	}{
		{mode: models.ModeEnforcing, wantOK: false, wantErr: kerrors.ErrAccessDenied},
		{mode: models.ModePermissive, wantOK: true, wantEvent: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := newFixture(t, tt.mode)
			ctx := context.Background()

			if err := f.repos.Policy.PutRule(ctx, "/data/p", models.NewAccessRule(models.KindFile)); err != nil {
				t.Fatalf("PutRule() error = %v", err)
			}

			ok, err := f.engine.CheckAccess(ctx, "/data/p", models.OpWrite, guest)
			if ok != tt.wantOK {
				t.Errorf("CheckAccess() = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckAccess() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckAccess() unexpected error = %v", err)
			}

			rec := f.lastAudit(t)
			if rec.Mode != tt.mode {
				t.Errorf("audit mode = %q, want %q", rec.Mode, tt.mode)
			}
			if rec.Result != models.AuditDenied {
				t.Errorf("audit result = %q, want denied", rec.Result)
			}
			if rec.SessionID != 7 || rec.Actor != "guest" || rec.Path != "/data/p" {
				t.Errorf("audit record = %+v", rec)
			}

			if got := len(f.sink.Events()) > 0; got != tt.wantEvent {
				t.Errorf("diagnostic event reported = %v, want %v", got, tt.wantEvent)
			}
		})
	}
}

func TestCheckAccess_Resolution(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	if err := f.engine.AddRule(ctx, "/data", models.OpRead, []string{"guest"}, models.KindDirectory); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	tests := []struct {
		name      string
		path      string
		op        models.Operation
		principal models.Principal
		wantErr   error
	}{
		{"parent rule applies", "/data/p", models.OpRead, guest, nil},
		{"parent rule has no write", "/data/p", models.OpWrite, guest, kerrors.ErrAccessDenied},
		{"no grandparent fallback", "/data/p/q", models.OpWrite, guest, kerrors.ErrAccessDenied},
		{"root always allowed", "/data/p/q", models.OpWrite, models.Principal{Actor: "root", Role: "root"}, nil},
		{"no rule denies", "/", models.OpRead, guest, kerrors.ErrAccessDenied},
		{"missing path for read", "/nope", models.OpRead, guest, kerrors.ErrNotFound},
		{"invalid operation", "/data", models.Operation("chown"), guest, kerrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CheckAccess(ctx, tt.path, tt.op, tt.principal)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("CheckAccess() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckAccess() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckAccess_DenialCarriesRecord(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	var denied error
	_ = f.repos.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, denied = f.engine.CheckAccess(ctx, "/data/p", models.OpWrite, guest)
		return denied
	})

	if records, _ := f.engine.Audit(ctx, 10); len(records) != 0 {
		t.Fatalf("audit should be rolled back with the transaction, got %d records", len(records))
	}

	if err := f.engine.PersistDenial(ctx, denied); err != nil {
		t.Fatalf("PersistDenial() error = %v", err)
	}
	if rec := f.lastAudit(t); rec.Result != models.AuditDenied || rec.Operation != models.OpWrite {
		t.Errorf("persisted record = %+v", rec)
	}

	if err := f.engine.PersistDenial(ctx, errors.New("unrelated")); err != nil {
		t.Errorf("PersistDenial(unrelated) error = %v", err)
	}
	if records, _ := f.engine.Audit(ctx, 10); len(records) != 1 {
		t.Errorf("unrelated error must not add records, got %d", len(records))
	}
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	if err := f.engine.SetMode(ctx, "permissive"); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if mode, _ := f.engine.Mode(ctx); mode != models.ModePermissive {
		t.Errorf("Mode() = %q, want permissive", mode)
	}

	err := f.engine.SetMode(ctx, "disabled")
	if !errors.Is(err, kerrors.ErrInvalidArgument) {
		t.Errorf("SetMode(disabled) error = %v, want InvalidArgument", err)
	}
	if mode, _ := f.engine.Mode(ctx); mode != models.ModePermissive {
		t.Errorf("Mode() after rejected literal = %q, want permissive", mode)
	}
}

func TestAddAndRemoveRule(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	if err := f.engine.AddRule(ctx, "/data/p", models.OpWrite, []string{"user", "user"}, models.KindFile); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	rules, _ := f.engine.ListRules(ctx)
	rule, ok := rules["/data/p"]
	if !ok {
		t.Fatal("rule /data/p missing")
	}
	for _, op := range models.Operations {
		if !rule.Has(op) {
			t.Errorf("bucket %s missing after AddRule", op)
		}
	}
	if got := rule.Roles[models.OpWrite]; !slices.Equal(got, []string{"user"}) {
		t.Errorf("write roles = %v, want [user]", got)
	}

	if err := f.engine.RemoveRule(ctx, "/data/p", models.OpWrite, []string{"user"}); err != nil {
		t.Fatalf("RemoveRule() error = %v", err)
	}
	err := f.engine.RemoveRule(ctx, "/data/p", models.OpWrite, []string{"user"})
	if !errors.Is(err, kerrors.ErrRuleNotFound) {
		t.Errorf("second RemoveRule() error = %v, want RuleNotFound", err)
	}

	for _, op := range []models.Operation{models.OpRead, models.OpExecute, models.OpDelete} {
		if err := f.engine.RemoveRule(ctx, "/data/p", op, nil); err != nil {
			t.Fatalf("RemoveRule(%s) error = %v", op, err)
		}
	}
	rules, _ = f.engine.ListRules(ctx)
	if _, ok := rules["/data/p"]; ok {
		t.Error("emptied rule should be dropped")
	}

	if err := f.engine.RemoveRule(ctx, "/never", models.OpRead, nil); !errors.Is(err, kerrors.ErrRuleNotFound) {
		t.Errorf("RemoveRule(/never) error = %v, want RuleNotFound", err)
	}
}

func TestResetPolicies(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	_ = f.engine.AddRule(ctx, "/custom", models.OpRead, []string{"guest"}, models.KindDirectory)
	if err := f.engine.ResetPolicies(ctx); err != nil {
		t.Fatalf("ResetPolicies() error = %v", err)
	}

	if mode, _ := f.engine.Mode(ctx); mode != models.ModePermissive {
		t.Errorf("Mode() = %q, want permissive", mode)
	}

	rules, _ := f.engine.ListRules(ctx)
	if _, ok := rules["/custom"]; ok {
		t.Error("custom rule survived reset")
	}
	if len(rules) != len(models.DefaultPolicy().Rules) {
		t.Errorf("got %d rules, want %d", len(rules), len(models.DefaultPolicy().Rules))
	}
}

func TestMirror_WrittenAndImported(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	if err := f.engine.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if _, err := os.Stat(f.mirror); err != nil {
		t.Fatalf("mirror not written: %v", err)
	}
	if mode, _ := f.engine.Mode(ctx); mode != models.ModeEnforcing {
		t.Errorf("Mode() after bootstrap = %q, want enforcing", mode)
	}

	edited := []byte(`{
		// hand edited
		"mode": "permissive",
		"rules": {
			"/data/": {"read": ["guest"], "type": "directory",},
		},
	}`)
	if err := os.WriteFile(f.mirror, edited, 0o644); err != nil {
		t.Fatal(err)
	}

	policy, err := f.engine.ImportMirror(ctx)
	if err != nil {
		t.Fatalf("ImportMirror() error = %v", err)
	}
	if policy.Mode != models.ModePermissive || len(policy.Rules) != 1 {
		t.Errorf("imported policy = %+v", policy)
	}

	rules, _ := f.engine.ListRules(ctx)
	if !rules["/data"].Allows(models.OpRead, "guest") {
		t.Errorf("rules after import = %v", rules)
	}

	// Bootstrap on an initialised store is a no-op.
	if err := f.engine.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	if mode, _ := f.engine.Mode(ctx); mode != models.ModePermissive {
		t.Errorf("Mode() = %q, want permissive", mode)
	}
}

func TestBootstrap_FromExistingMirror(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(f.mirror), 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `{"mode": "permissive", "rules": {"/": {"read": ["user"], "type": "directory"}}}`
	if err := os.WriteFile(f.mirror, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	policy, err := f.engine.Policy(ctx)
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if policy.Mode != models.ModePermissive || len(policy.Rules) != 1 || !policy.Rules["/"].Allows(models.OpRead, "user") {
		t.Errorf("Policy() = %+v", policy)
	}
}

func TestCheckAccess_PermissiveOverrideAuditsDeniedResult(t *testing.T) {
	f := newFixture(t, models.ModePermissive)
	ctx := context.Background()

	ok, err := f.engine.CheckAccess(ctx, "/data/p", models.OpWrite, guest)
	if err != nil || !ok {
		t.Fatalf("CheckAccess() = %v, %v; want true, nil", ok, err)
	}

	rec := f.lastAudit(t)
	if rec.Result != models.AuditDenied || rec.Mode != models.ModePermissive {
		t.Errorf("audit record = %+v, want result denied with mode permissive", rec)
	}
}

func TestPolicyFaultsReachDiagnostics(t *testing.T) {
	f := newFixture(t, models.ModeEnforcing)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"set unknown mode", func() error { return f.engine.SetMode(ctx, "bogus") }, kerrors.ErrInvalidArgument},
		{"add rule with unknown operation", func() error {
			return f.engine.AddRule(ctx, "/data", models.Operation("fly"), []string{"user"}, models.KindDirectory)
		}, kerrors.ErrInvalidArgument},
		{"add rule on relative path", func() error {
			return f.engine.AddRule(ctx, "data", models.OpRead, []string{"user"}, models.KindDirectory)
		}, kerrors.ErrInvalidArgument},
		{"remove absent rule", func() error {
			return f.engine.RemoveRule(ctx, "/nope", models.OpRead, []string{"user"})
		}, kerrors.ErrRuleNotFound},
		{"remove rule with unknown operation", func() error {
			return f.engine.RemoveRule(ctx, "/data", models.Operation("fly"), nil)
		}, kerrors.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(f.sink.Events())

			err := tt.call()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}

			events := f.sink.Events()
			if len(events) != before+1 {
				t.Fatalf("diagnostic events = %d, want %d", len(events), before+1)
			}
			fault, _ := kerrors.As(err)
			if got := events[len(events)-1]; got.Code != fault.Code {
				t.Errorf("event code = %s, want %s", got.Code, fault.Code)
			}
		})
	}
}
