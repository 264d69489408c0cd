package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/S1riyS/tnfs/internal/cache"
	"github.com/S1riyS/tnfs/internal/diagnostics"
	"github.com/S1riyS/tnfs/internal/journal"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/repository/memory"
	"github.com/S1riyS/tnfs/internal/security/mac"
	"github.com/S1riyS/tnfs/internal/service"
)

func newCommands(t *testing.T) (*commands, *bytes.Buffer) {
	t.Helper()

	ctx := context.Background()
	repos := memory.New(time.Second).Repositories()
	sink := &diagnostics.Recorder{}

	engine := mac.NewEngine(mac.Deps{Repos: repos, InitialMode: models.ModeEnforcing, Sink: sink})
	if err := engine.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	contentCache, err := cache.New(0)
	if err != nil {
		t.Fatal(err)
	}
	opJournal := journal.New(repos.Journal, nil)

	out := &bytes.Buffer{}
	return &commands{
		fs:      service.NewFileSystemService(repos, engine, opJournal, contentCache, nil, sink),
		mac:     engine,
		journal: opJournal,
		flags:   commandFlags{actor: models.RootActor, role: models.RootRole, limit: journal.DefaultLimit, kind: "directory"},
		out:     out,
	}, out
}

func TestDispatch_Session(t *testing.T) {
	c, out := newCommands(t)
	ctx := context.Background()

	steps := [][]string{
		{"init"},
		{"mkdir", "/home/docs"},
		{"touch", "/home/docs/a.txt", "hello"},
		{"cp", "/home/docs", "/tmp/docs"},
		{"mv", "/tmp/docs/a.txt", "/tmp/b.txt"},
		{"chmod", "600", "/tmp/b.txt"},
	}
	for _, args := range steps {
		if err := c.dispatch(ctx, args); err != nil {
			t.Fatalf("dispatch(%v) error = %v", args, err)
		}
	}

	out.Reset()
	if err := c.dispatch(ctx, []string{"cat", "/tmp/b.txt"}); err != nil {
		t.Fatalf("cat error = %v", err)
	}
	if out.String() != "hello" {
		t.Errorf("cat = %q, want hello", out.String())
	}

	out.Reset()
	if err := c.dispatch(ctx, []string{"stat", "/tmp/b.txt"}); err != nil {
		t.Fatalf("stat error = %v", err)
	}
	if !strings.Contains(out.String(), "mode:     0600") {
		t.Errorf("stat output = %q", out.String())
	}

	out.Reset()
	if err := c.dispatch(ctx, []string{"ls", "/tmp"}); err != nil {
		t.Fatalf("ls error = %v", err)
	}
	if got := strings.Fields(out.String()); len(got) != 2 || got[0] != "docs" || got[1] != "b.txt" {
		t.Errorf("ls /tmp = %v", got)
	}
}

func TestDispatch_MacCommands(t *testing.T) {
	c, out := newCommands(t)
	ctx := context.Background()

	if err := c.dispatch(ctx, []string{"mac", "add", "/srv", "read", "user", "guest"}); err != nil {
		t.Fatalf("mac add error = %v", err)
	}
	out.Reset()
	if err := c.dispatch(ctx, []string{"mac", "rules"}); err != nil {
		t.Fatalf("mac rules error = %v", err)
	}
	if !strings.Contains(out.String(), "/srv (directory)\n  read     guest,user\n") {
		t.Errorf("mac rules output = %q", out.String())
	}

	if err := c.dispatch(ctx, []string{"mac", "mode", "permissive"}); err != nil {
		t.Fatalf("mac mode error = %v", err)
	}
	out.Reset()
	_ = c.dispatch(ctx, []string{"mac", "mode"})
	if strings.TrimSpace(out.String()) != "permissive" {
		t.Errorf("mac mode = %q", out.String())
	}

	if err := c.dispatch(ctx, []string{"mac", "mode", "strict"}); !errors.Is(err, kerrors.ErrInvalidArgument) {
		t.Errorf("mac mode strict error = %v, want InvalidArgument", err)
	}
}

func TestDispatch_BadArguments(t *testing.T) {
	c, _ := newCommands(t)
	ctx := context.Background()

	tests := [][]string{
		{"frobnicate"},
		{"mkdir"},
		{"chmod", "9z", "/tmp"},
		{"mac", "add", "/x"},
		{"journal", "/a", "/b"},
	}
	for _, args := range tests {
		if err := c.dispatch(ctx, args); !errors.Is(err, kerrors.ErrInvalidArgument) {
			t.Errorf("dispatch(%v) error = %v, want InvalidArgument", args, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"755", 0o755},
		{"0644", 0o644},
		{"0o600", 0o600},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseMode(%q) = %#o, %v; want %#o", tt.in, got, err, tt.want)
		}
	}
}
