// Command fintrackctl inspects and maintains the fintrack ledger.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"

	"fintrack/internal/cli"
	"fintrack/internal/export/sheets"
	applog "fintrack/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, err := cli.LoadConfig()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(int(subcommands.ExitUsageError))
	}
	logger := applog.New(applog.Config{
		Level:     cliLevel(cfg.LogLevel),
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	a := &app{
		out: os.Stdout,
		open: func(ctx context.Context) (*session, error) {
			res, err := cli.OpenBackend(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return &session{Backend: res.Backend, close: res.Cleanup}, nil
		},
		newWriter: func(ctx context.Context) (sheets.ValueWriter, error) {
			creds, err := sheets.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
			if err != nil {
				return nil, err
			}
			return sheets.NewService(ctx, creds)
		},
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range a.commands() {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// cliLevel keeps the CLI quiet unless debug logging was asked for.
func cliLevel(s string) slog.Level {
	level, err := applog.ParseLevel(s)
	if err != nil || level == slog.LevelInfo {
		return slog.LevelWarn
	}
	return level
}
