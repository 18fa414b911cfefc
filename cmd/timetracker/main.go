package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"timetracker/internal/adapter/apiclient"
	"timetracker/internal/app"
	"timetracker/internal/config"
	"timetracker/internal/domain"
	"timetracker/internal/migrate"
)

const usage = `timetracker: per-user time tracking service.

Usage:
  timetracker [flags] [command] [args]

Commands:
  serve                      run the HTTP API (default)
  migrate                    apply MySQL schema migrations and exit
  start <project>            start a timer for project
  stop                       stop the running timer
  current                    show the running timer
  history                    list the 10 most recent entries
  describe <id> <text...>    set the description of an entry
  delete <id>                delete an entry

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := exitHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("timetracker", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "YAML config file (default: $TIMETRACKER_CONFIG)")
	verbose := flags.BoolP("verbose", "v", false, "Enable verbose logging")
	server := flags.String("server", envOr("TIMETRACKER_SERVER", "http://localhost:5000"), "API base URL for client commands")
	user := flags.StringP("user", "u", os.Getenv("TIMETRACKER_USER"), "user id sent with client commands")
	header := flags.String("identity-header", envOr("IDENTITY_HEADER", "X-User-ID"), "header carrying the user id")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Logger
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := flags.Args()
	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "serve":
		return serve(ctx, logger, *configPath)
	case "migrate":
		return runMigrations(ctx, logger, *configPath)
	}

	client := apiclient.NewClient(*server, *header, logger)
	out := os.Stdout
	switch cmd {
	case "start":
		if len(rest) == 0 {
			return errors.New("start: project name required")
		}
		e, err := client.Start(ctx, *user, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		printEntry(out, e, time.Now())
	case "stop":
		e, err := client.Stop(ctx, *user)
		if err != nil {
			return err
		}
		printEntry(out, e, time.Now())
	case "current":
		e, err := client.Current(ctx, *user)
		if err != nil {
			return err
		}
		if e == nil {
			fmt.Fprintln(out, "no running timer")
			return nil
		}
		printEntry(out, *e, time.Now())
	case "history":
		entries, err := client.History(ctx, *user)
		if err != nil {
			return err
		}
		printHistory(out, entries, time.Now())
	case "describe":
		if len(rest) < 1 {
			return errors.New("describe: entry id required")
		}
		e, err := client.UpdateDescription(ctx, *user, rest[0], strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		printEntry(out, e, time.Now())
	case "delete":
		if len(rest) != 1 {
			return errors.New("delete: exactly one entry id required")
		}
		if err := client.DeleteEntry(ctx, *user, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", rest[0])
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func serve(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close store", slog.String("error", err.Error()))
		}
	}()

	srv := application.HTTPServer(cfg.HTTP.Addr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTP.Addr), slog.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrations(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Driver != config.DriverMySQL {
		return fmt.Errorf("migrate only applies to the mysql store (STORE_DRIVER=%s)", cfg.Store.Driver)
	}
	if err := migrate.Run(ctx, cfg.MySQL.DSN, logger); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// exitHint adds a short suggestion for the error kinds users hit most.
func exitHint(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "stop the running timer first"
	case errors.Is(err, domain.ErrNotFound):
		return "check the entry id with `timetracker history`"
	}
	return ""
}
