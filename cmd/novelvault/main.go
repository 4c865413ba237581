// Package main provides the novelvault command line: one-shot library
// commands and the long-running API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/urfave/cli/v2"

	"github.com/listenupapp/novelvault/internal/config"
	"github.com/listenupapp/novelvault/internal/di"
	domainerrors "github.com/listenupapp/novelvault/internal/errors"
	"github.com/listenupapp/novelvault/internal/logger"
)

// configFlags are the global flags forwarded to config.LoadConfig.
// Unset flags fall through to the environment and then to defaults.
var configFlags = []string{
	"env",
	"env-file",
	"log-level",
	"log-file",
	"data-dir",
	"database-path",
	"download-dir",
	"sources-file",
	"max-concurrency",
	"gap-policy",
	"requests-per-second",
	"fetch-timeout",
	"busy-timeout",
	"retry-attempts",
}

func main() {
	app := &cli.App{
		Name:  "novelvault",
		Usage: "Download web novels into a local library and track your reading",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			DownloadCommand(),
			LibraryCommand(),
			SearchCommand(),
			CategoriesCommand(),
			ProgressCommand(),
			BookmarkCommand(),
			NotesCommand(),
			SessionCommand(),
			HistoryCommand(),
			VerifyCommand(),
			CleanupCommand(),
			ExportCommand(),
			DeleteCommand(),
			SourcesCommand(),
			SetDataDirCommand(),
			ServeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "novelvault: %v\n", err)
		if domainerrors.CodeOf(err).Temporary() {
			fmt.Fprintln(os.Stderr, "This is usually temporary; try again shortly.")
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeValidation:
		return 2
	case domainerrors.CodeNotFound:
		return 3
	case domainerrors.CodeConflict, domainerrors.CodeAlreadyExists:
		return 4
	case domainerrors.CodeBusy, domainerrors.CodeSourceUnavailable:
		return 5
	default:
		return 1
	}
}

func globalFlags() []cli.Flag {
	usage := map[string]string{
		"env":                 "Environment: development, staging or production",
		"env-file":            "Path to a .env file",
		"log-level":           "Log level: debug, info, warn or error",
		"log-file":            "Also write logs to this file",
		"data-dir":            "Directory for the database, downloads and sources file",
		"database-path":       "Database file (overrides the saved data dir)",
		"download-dir":        "Directory for downloaded artifacts",
		"sources-file":        "JSON file describing the sources",
		"max-concurrency":     "Concurrent chapter fetches per download",
		"gap-policy":          "How failed chapters are written: skip or placeholder",
		"requests-per-second": "Requests per second per source (0 disables the limit)",
		"fetch-timeout":       "Timeout for a single chapter fetch",
		"busy-timeout":        "SQLite busy timeout",
		"retry-attempts":      "Attempts for writes that hit a busy database",
	}

	flags := make([]cli.Flag, 0, len(configFlags))
	for _, name := range configFlags {
		flags = append(flags, &cli.StringFlag{Name: name, Usage: usage[name]})
	}
	return flags
}

// flagsFromContext collects the config flags that were set on the command
// line, including those set on parent commands.
func flagsFromContext(c *cli.Context, extra ...string) config.Flags {
	flags := config.Flags{}
	for _, name := range slices.Concat(configFlags, extra) {
		if c.IsSet(name) {
			flags[name] = c.String(name)
		}
	}
	return flags
}

// withContainer runs fn against a fresh container and shuts it down after.
// Services are built on first use, so a command only opens what it touches.
func withContainer(c *cli.Context, fn func(ctx context.Context, i do.Injector) error) error {
	injector := di.NewContainer(flagsFromContext(c))
	defer func() {
		if err := injector.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, injector)
}

// serve runs the API server until SIGINT or SIGTERM.
func serve(flags config.Flags) error {
	injector := di.NewContainer(flags)

	if err := di.Bootstrap(injector); err != nil {
		_ = injector.Shutdown()
		return fmt.Errorf("failed to bootstrap server: %w", err)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container shuts services down in reverse dependency order: the
	// HTTP server first, then running downloads, then the database.
	log.Info("Goodbye")
	if err := injector.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	return nil
}
