package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/S1riyS/tnfs/internal/journal"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/security/mac"
	"github.com/S1riyS/tnfs/internal/service"
)

type commandFlags struct {
	actor   string
	role    string
	session int64
	owner   string
	mode    string
	kind    string
	limit   int
}

func (f commandFlags) principal() models.Principal {
	return models.Principal{Actor: f.actor, Role: f.role, SessionID: f.session}
}

type commands struct {
	fs      service.FileSystemService
	mac     *mac.Engine
	journal *journal.Journal
	flags   commandFlags
	out     io.Writer
}

func (c *commands) dispatch(ctx context.Context, args []string) error {
	name, args := args[0], args[1:]
	p := c.flags.principal()

	switch name {
	case "init":
		return c.fs.Init(ctx, p)
	case "mkdir":
		if err := wantArgs(name, args, 1); err != nil {
			return err
		}
		mode, err := c.modeOr(service.DefaultDirMode)
		if err != nil {
			return err
		}
		return c.fs.CreateDirectory(ctx, p, args[0], c.flags.owner, mode)
	case "touch":
		if len(args) < 1 || len(args) > 2 {
			return usage("touch PATH [CONTENT]")
		}
		mode, err := c.modeOr(service.DefaultFileMode)
		if err != nil {
			return err
		}
		var content []byte
		if len(args) == 2 {
			content = []byte(args[1])
		}
		return c.fs.CreateFile(ctx, p, args[0], content, c.flags.owner, mode)
	case "write":
		if err := wantArgs(name, args, 2); err != nil {
			return err
		}
		return c.fs.WriteFile(ctx, p, args[0], []byte(args[1]))
	case "cat":
		if err := wantArgs(name, args, 1); err != nil {
			return err
		}
		data, err := c.fs.ReadFile(ctx, p, args[0])
		if err != nil {
			return err
		}
		_, err = c.out.Write(data)
		return err
	case "ls":
		if err := wantArgs(name, args, 1); err != nil {
			return err
		}
		names, err := c.fs.ListDirectory(ctx, p, args[0])
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(c.out, n)
		}
		return nil
	case "rm":
		if err := wantArgs(name, args, 1); err != nil {
			return err
		}
		return c.fs.Remove(ctx, p, args[0])
	case "mv", "rename", "cp":
		if err := wantArgs(name, args, 2); err != nil {
			return err
		}
		return c.transfer(ctx, name, p, args[0], args[1])
	case "chmod":
		if err := wantArgs(name, args, 2); err != nil {
			return err
		}
		mode, err := parseMode(args[0])
		if err != nil {
			return err
		}
		return c.fs.Chmod(ctx, p, args[1], mode)
	case "stat":
		if err := wantArgs(name, args, 1); err != nil {
			return err
		}
		node, err := c.fs.Stat(ctx, p, args[0])
		if err != nil {
			return err
		}
		c.printNode(node)
		return nil
	case "journal":
		return c.showJournal(ctx, args)
	case "audit":
		return c.showAudit(ctx)
	case "mac":
		return c.macCommand(ctx, args)
	default:
		return kerrors.InvalidArgument("unknown command: " + name)
	}
}

// transfer picks the file or directory variant from the kind of src.
func (c *commands) transfer(ctx context.Context, name string, p models.Principal, src, dst string) error {
	node, err := c.fs.Stat(ctx, p, src)
	if err != nil {
		return err
	}
	dir := node.IsDir()

	switch {
	case name == "mv" && dir:
		return c.fs.MoveDirectory(ctx, p, src, dst)
	case name == "mv":
		return c.fs.MoveFile(ctx, p, src, dst)
	case name == "rename" && dir:
		return c.fs.RenameDirectory(ctx, p, src, dst)
	case name == "rename":
		return c.fs.RenameFile(ctx, p, src, dst)
	case dir:
		return c.fs.CopyDirectory(ctx, p, src, dst)
	default:
		return c.fs.CopyFile(ctx, p, src, dst)
	}
}

func (c *commands) printNode(node *models.Node) {
	fmt.Fprintf(c.out, "path:     %s\n", node.Path)
	fmt.Fprintf(c.out, "ino:      %d\n", node.Ino)
	fmt.Fprintf(c.out, "kind:     %s\n", node.Kind)
	fmt.Fprintf(c.out, "owner:    %s\n", node.Owner)
	fmt.Fprintf(c.out, "mode:     %#o\n", node.Mode)
	fmt.Fprintf(c.out, "size:     %d\n", node.Size)
	fmt.Fprintf(c.out, "created:  %s\n", node.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "modified: %s\n", node.ModifiedAt.Format(time.RFC3339))
}

func (c *commands) showJournal(ctx context.Context, args []string) error {
	var (
		entries []models.JournalEntry
		err     error
	)
	switch len(args) {
	case 0:
		entries, err = c.journal.Recent(ctx, c.flags.limit)
	case 1:
		entries, err = c.journal.ForPath(ctx, args[0], c.flags.limit)
	default:
		return usage("journal [PATH]")
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Fprintf(c.out, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Timestamp.Format(time.RFC3339), e.Actor, e.Operation, e.Path, e.Details)
	}
	return nil
}

func (c *commands) showAudit(ctx context.Context) error {
	records, err := c.mac.Audit(ctx, c.flags.limit)
	if err != nil {
		return err
	}

	for _, r := range records {
		fmt.Fprintf(c.out, "%d\t%s\t%s/%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format(time.RFC3339), r.Actor, r.Role, r.Operation, r.Path, r.Result, r.Mode)
	}
	return nil
}

func (c *commands) macCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("mac mode|rules|add|remove|reset|import")
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "mode":
		if len(args) == 1 {
			return c.mac.SetMode(ctx, args[0])
		}
		mode, err := c.mac.Mode(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, mode)
		return nil
	case "rules":
		rules, err := c.mac.ListRules(ctx)
		if err != nil {
			return err
		}
		c.printRules(rules)
		return nil
	case "add", "remove":
		if len(args) < 3 {
			return usage("mac " + sub + " PATH OP ROLE...")
		}
		operation, err := models.ParseOperation(args[1])
		if err != nil {
			return err
		}
		if sub == "remove" {
			return c.mac.RemoveRule(ctx, args[0], operation, args[2:])
		}
		kind, err := models.ParseKind(c.flags.kind)
		if err != nil {
			return err
		}
		return c.mac.AddRule(ctx, args[0], operation, args[2:], kind)
	case "reset":
		return c.mac.ResetPolicies(ctx)
	case "import":
		policy, err := c.mac.ImportMirror(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "imported %d rules, mode %s\n", len(policy.Rules), policy.Mode)
		return nil
	default:
		return kerrors.InvalidArgument("unknown mac command: " + sub)
	}
}

func (c *commands) printRules(rules map[string]models.AccessRule) {
	paths := make([]string, 0, len(rules))
	for p := range rules {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		rule := rules[p]
		fmt.Fprintf(c.out, "%s (%s)\n", p, rule.Kind)
		for _, op := range models.Operations {
			if roles := rule.Roles[op]; len(roles) > 0 {
				fmt.Fprintf(c.out, "  %-8s %s\n", op, strings.Join(roles, ","))
			}
		}
	}
}

func (c *commands) modeOr(def uint32) (uint32, error) {
	if c.flags.mode == "" {
		return def, nil
	}
	return parseMode(c.flags.mode)
}

func parseMode(s string) (uint32, error) {
	mode, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return 0, kerrors.InvalidArgument("mode must be octal: " + s)
	}
	return uint32(mode), nil
}

func wantArgs(name string, args []string, n int) error {
	if len(args) != n {
		return kerrors.InvalidArgument(fmt.Sprintf("%s takes %d argument(s), got %d", name, n, len(args)))
	}
	return nil
}

func usage(form string) error {
	return kerrors.InvalidArgument("usage: tnfs " + form)
}
