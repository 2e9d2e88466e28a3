package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/mnemo/internal/config"
	"github.com/hpungsan/mnemo/internal/mcp"
	"github.com/hpungsan/mnemo/internal/metrics"
	"github.com/hpungsan/mnemo/internal/observe"
	"github.com/hpungsan/mnemo/internal/plugin"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// shutdownTimeout bounds the final drain of queued writes.
const shutdownTimeout = 30 * time.Second

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"remember": true, "recall": true, "ingest": true,
	"skills": true, "identity": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __  __ _ __   ___ _ __ ___   ___
  |  \/  | '_ \ / _ \ '_ ' _ \ / _ \
  | |\/| | | | |  __/ | | | | | (_) |
  |_|  |_|_| |_|\___|_| |_| |_|\___/

  Long-term memory and skills for coding agents

  Usage: mnemo <command> [options]
         mnemo --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no config or store.
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	globalDir := filepath.Join(homeDir, ".mnemo")

	// An unknown working directory is tolerated: identity falls back to the
	// subject-scoped conversation.
	cwd, _ := os.Getwd()

	cfg, err := config.Resolve(globalDir, cwd, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	obs := observe.New(os.Stderr, cfg.Verbose())
	m := metrics.New()

	p, err := plugin.New(plugin.Options{
		Config:    cfg,
		Observer:  obs,
		Metrics:   m,
		GlobalDir: globalDir,
		OriginDir: cwd,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if isCLIMode() {
		app := newCLIApp(p)
		runErr := app.Run(os.Args)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := p.Shutdown(ctx); err != nil && runErr == nil {
			runErr = err
		}
		cancel()
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'mnemo --help' for usage.\n")
		os.Exit(1)
	}

	if err := serve(p, m, obs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// serve runs the MCP server until stdin closes, alongside the optional
// metrics endpoint, then drains the write queue.
func serve(p *plugin.Plugin, m *metrics.Metrics, obs *observe.Observer) error {
	cfg := p.Config()
	log := obs.Log()

	if unknown := mcp.ValidateDisabledTools(p, cfg.DisabledTools); len(unknown) > 0 {
		log.Warn().Str("tools", strings.Join(unknown, ",")).Msg("unknown tool names in disabled_tools")
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn().Str("types", strings.Join(unknown, ",")).Msg("unknown type names in disabled_types")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A store outage at launch must not keep the host from starting.
	if err := p.Start(ctx); err != nil {
		log.Error().Err(err).Msg("memory setup failed; writes may be dropped")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return mcp.Run(p, Version)
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	err := g.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if serr := p.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
