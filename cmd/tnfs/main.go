package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/S1riyS/tnfs/internal/cache"
	"github.com/S1riyS/tnfs/internal/config"
	"github.com/S1riyS/tnfs/internal/diagnostics"
	"github.com/S1riyS/tnfs/internal/journal"
	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/internal/repository"
	"github.com/S1riyS/tnfs/internal/repository/memory"
	"github.com/S1riyS/tnfs/internal/security/mac"
	"github.com/S1riyS/tnfs/internal/service"
	"github.com/S1riyS/tnfs/pkg/clock"
	"github.com/S1riyS/tnfs/pkg/database/postgresql"
	"github.com/S1riyS/tnfs/pkg/logging"
	"github.com/S1riyS/tnfs/pkg/logging/slogext"
	"github.com/S1riyS/tnfs/pkg/logging/slogpretty"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(); err != nil {
		if fault, ok := kerrors.As(err); ok {
			fmt.Fprintf(os.Stderr, "%s [%s]: %s\n", fault.Category, fault.Code, fault.Message)
			if fault.Details != "" {
				fmt.Fprintf(os.Stderr, "  %s\n", fault.Details)
			}
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		flags      commandFlags
	)

	flagSet := pflag.NewFlagSet("tnfs", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	flagSet.StringVar(&flags.actor, "actor", models.RootActor, "acting user name")
	flagSet.StringVar(&flags.role, "role", models.RootRole, "MAC role of the acting user")
	flagSet.Int64Var(&flags.session, "session", 0, "session id recorded in audit records")
	flagSet.StringVar(&flags.owner, "owner", "", "owner of created nodes (default: the actor)")
	flagSet.StringVar(&flags.mode, "mode", "", "octal mode bits of created nodes")
	flagSet.StringVar(&flags.kind, "kind", "directory", "kind recorded on new MAC rules (file or directory)")
	flagSet.IntVarP(&flags.limit, "limit", "n", journal.DefaultLimit, "number of journal or audit entries to show")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && !flagSet.Changed("config") {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.App)

	// Root context
	ctx := context.Background()
	ctx = logging.MakeContextWithLogger(ctx, logger)
	ctx, cancel := context.WithTimeout(ctx, cfg.App.DefaultTimeout)
	defer cancel()

	// Dependencies
	repos, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	initialMode, err := models.ParseMode(cfg.Security.Mode)
	if err != nil {
		return err
	}

	clk := clock.Real()
	sink := diagnostics.LogSink{}

	macEngine := mac.NewEngine(mac.Deps{
		Repos:       repos,
		Mirror:      mac.NewMirror(cfg.Security.PolicyMirror),
		InitialMode: initialMode,
		Clock:       clk,
		Sink:        sink,
	})
	if err := macEngine.Bootstrap(ctx); err != nil {
		return err
	}

	contentCache, err := cache.New(cfg.Cache.MaxEntries)
	if err != nil {
		return err
	}

	opJournal := journal.New(repos.Journal, clk)
	fs := service.NewFileSystemService(repos, macEngine, opJournal, contentCache, clk, sink)

	cmd := &commands{
		fs:      fs,
		mac:     macEngine,
		journal: opJournal,
		flags:   flags,
		out:     os.Stdout,
	}
	return cmd.dispatch(ctx, flagSet.Args())
}

// openStore returns the repositories of the configured storage driver. The
// memory driver keeps nothing between runs.
func openStore(ctx context.Context, cfg *config.Config) (repository.Repositories, func(), error) {
	const op = "main.openStore"
	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if cfg.Storage.Driver == config.DriverMemory {
		logger.Debug("Using in-memory store")
		return memory.New(cfg.Database.LockTimeout).Repositories(), func() {}, nil
	}

	pool, err := postgresql.NewClient(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", slogext.Err(err))
		return repository.Repositories{}, nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return repository.Repositories{}, nil, err
	}

	tx := postgresql.NewTransactor(pool, cfg.Database.LockTimeout)
	return repository.NewPostgres(pool, tx), pool.Close, nil
}

func setupLogger(cfg config.AppConfig) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return setupPrettySlog(level)
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(os.Stderr)

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tnfs - transactional namespace with DAC and MAC checks.

Usage:
  tnfs [flags] <command> [args]

Commands:
  init                        create the default directory layout
  mkdir PATH                  create a directory
  touch PATH [CONTENT]        create a file
  write PATH CONTENT          replace file content
  cat PATH                    print file content
  ls PATH                     list a directory
  rm PATH                     remove a file or an empty directory
  mv SRC DST                  move a file or directory
  rename OLD NEW              rename a file or directory
  cp SRC DST                  copy a file or directory
  chmod MODE PATH             change mode bits (octal)
  stat PATH                   print node metadata
  journal [PATH]              show the operation journal
  audit                       show MAC audit records
  mac mode [enforcing|permissive]
  mac rules
  mac add PATH OP ROLE...
  mac remove PATH OP ROLE...
  mac reset
  mac import

Flags:
%s`, flagSet.FlagUsages())
}
