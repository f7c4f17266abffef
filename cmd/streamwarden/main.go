// Command streamwarden inspects, validates, and profiles stream processors.
//
// Usage:
//
//	streamwarden <command> [flags] [args]
//
// Commands:
//
//	score     estimate pipeline complexity and recommend a tier
//	validate  check pipeline structure against the known connections
//	profile   sample running processors and analyze the series
//	start     start a processor, optionally at a specific tier
//	stop      stop a running processor
//	deploy    create or update a processor from its local definition
//	delete    remove a processor
//	watch     re-check local definitions as their files change
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamwarden/streamwarden/internal/config"
	"github.com/streamwarden/streamwarden/internal/controlplane"
	"github.com/streamwarden/streamwarden/internal/live"
	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/notify"
	"github.com/streamwarden/streamwarden/internal/profile"
	"github.com/streamwarden/streamwarden/internal/score"
	"github.com/streamwarden/streamwarden/internal/tier"
	"github.com/streamwarden/streamwarden/internal/validate"
	"github.com/streamwarden/streamwarden/internal/watch"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, args); err != nil {
		slog.Error("command failed", "command", cmd, "err", err)
		os.Exit(1)
	}
}

var commands = map[string]func(ctx context.Context, args []string) error{
	"score":    runScore,
	"validate": runValidate,
	"profile":  runProfile,
	"start":    runStart,
	"stop":     runStop,
	"deploy":   runDeploy,
	"delete":   runDelete,
	"watch":    runWatch,
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: streamwarden <command> [flags] [args]

commands:
  score     estimate pipeline complexity and recommend a tier
  validate  check pipeline structure against the known connections
  profile   sample running processors and analyze the series
  start     start a processor, optionally at a specific tier
  stop      stop a running processor
  deploy    create or update a processor from its local definition
  delete    remove a processor
  watch     re-check local definitions as their files change
`)
}

// newFlagSet creates a flag set carrying the flags every command shares.
func newFlagSet(name string) (*flag.FlagSet, *string, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "streamwarden.yaml", "path to config file")
	logLevel := fs.String("log-level", "info", "log level: debug | info | warn | error")
	logFormat := fs.String("log-format", "console", "log format: console | json")
	return fs, configPath, logLevel, logFormat
}

// setup parses flags, installs logging, and loads the config.
func setup(fs *flag.FlagSet, args []string, configPath, logLevel, logFormat *string) (*config.Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	logging.Setup(os.Stderr, *logLevel, *logFormat)
	return config.Load(*configPath)
}

// modeFor selects the validation strictness from the -strict flag and the
// config; the flag wins.
func modeFor(strict bool, cfg *config.Config) validate.Mode {
	if strict || cfg.Processors.Strict {
		return validate.Strict
	}
	return validate.Minimal
}

// loaderFor builds the definition resolution chain: local files first, then
// the control plane.
func loaderFor(cfg *config.Config, client *controlplane.Client) controlplane.ChainLoader {
	return controlplane.ChainLoader{
		controlplane.FileLoader{Dir: cfg.Processors.Dir},
		client,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runScore(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("score")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		return errors.New("score: at least one processor name required")
	}

	loader := loaderFor(cfg, controlplane.New(cfg.ControlPlane))
	results := make(map[string]score.Result, len(names))
	for _, name := range names {
		results[name] = score.ScoreNamed(ctx, loader, name)
	}
	return printJSON(results)
}

func runValidate(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("validate")
	strict := fs.Bool("strict", false, "treat a missing output stage as an error")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		return errors.New("validate: at least one processor name required")
	}

	mode := modeFor(*strict, cfg)

	client := controlplane.New(cfg.ControlPlane)
	loader := loaderFor(cfg, client)
	connections := client.KnownConnectionNames(ctx, cfg.ConnectionNames())

	results := make(map[string]validate.Result, len(names))
	failed := false
	for _, name := range names {
		def, err := loader.Load(ctx, name)
		if err != nil {
			return fmt.Errorf("validate %q: %w", name, err)
		}
		res := validate.Validate(def, connections, mode, name)
		results[name] = res
		if !res.Valid {
			failed = true
		}
	}
	if err := printJSON(results); err != nil {
		return err
	}
	if failed {
		return errors.New("validation failed")
	}
	return nil
}

func runProfile(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("profile")
	interval := fs.Duration("interval", 0, "sampling interval (default from config)")
	duration := fs.Duration("duration", -1, "run length; 0 runs until interrupted (default from config)")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		return errors.New("profile: at least one processor name required")
	}

	if *interval <= 0 {
		*interval = cfg.Profile.Interval
	}
	if *duration < 0 {
		*duration = cfg.Profile.Duration
	}

	var source profile.MetricsSource = controlplane.New(cfg.ControlPlane)
	if cfg.ControlPlane.MetricsEndpoint != "" {
		source = controlplane.NewPromStats(cfg.ControlPlane.MetricsEndpoint, cfg.ControlPlane.Timeout, *interval)
	}

	notifier := notify.New(cfg.Profile.Webhooks)
	sampler := profile.NewSampler(source, func(alert string) {
		slog.Warn("threshold alert", "alert", alert)
		notifier.Notify(alert)
	})

	if cfg.Live.Port > 0 {
		hub := live.New(sampler, cfg.Live.BroadcastInterval)
		go hub.Run(ctx)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Live.Port),
			Handler:           hub,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("live tick stream listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("live server stopped", "err", err)
			}
		}()
		defer srv.Close()
	}

	slog.Info("profiling", "processors", names, "interval", *interval, "duration", *duration)
	analysis, err := sampler.Run(ctx, names, *interval, *duration, cfg.Profile.Thresholds)
	if err != nil {
		return err
	}
	return printJSON(analysis)
}

func runStart(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("start")
	tierFlag := fs.String("tier", "", "tier to start at (SP2 | SP5 | SP10 | SP30 | SP50); empty lets the service choose")
	auto := fs.Bool("auto-tier", false, "score the local definition and start at the recommended tier")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("start: exactly one processor name required")
	}
	name := fs.Arg(0)

	client := controlplane.New(cfg.ControlPlane)

	var t tier.Tier
	switch {
	case *tierFlag != "":
		parsed, ok := tier.Parse(*tierFlag)
		if !ok {
			return fmt.Errorf("start: unknown tier %q", *tierFlag)
		}
		t = parsed
	case *auto:
		res := score.ScoreNamed(ctx, loaderFor(cfg, client), name)
		t = res.RecommendedTier
		slog.Info("scored definition", "processor", name,
			"complexity", res.ComplexityScore, "tier", t)
	}

	result, err := client.StartProcessor(ctx, name, t)
	if err != nil {
		return err
	}
	if result.Upgraded {
		slog.Info("processor started at upgraded tier", "processor", name,
			"requested", result.RequestedTier, "tier", result.Tier)
	} else {
		slog.Info("processor started", "processor", name, "tier", result.Tier)
	}
	return printJSON(result)
}

func runStop(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("stop")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("stop: exactly one processor name required")
	}
	name := fs.Arg(0)

	if err := controlplane.New(cfg.ControlPlane).StopProcessor(ctx, name); err != nil {
		return err
	}
	slog.Info("processor stopped", "processor", name)
	return nil
}

func runDeploy(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("deploy")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("deploy: exactly one processor name required")
	}
	name := fs.Arg(0)

	def, err := controlplane.FileLoader{Dir: cfg.Processors.Dir}.Load(ctx, name)
	if err != nil {
		return err
	}

	client := controlplane.New(cfg.ControlPlane)
	connections := client.KnownConnectionNames(ctx, cfg.ConnectionNames())
	res := validate.Validate(def, connections, validate.Minimal, name)
	if !res.Valid {
		if err := printJSON(res); err != nil {
			return err
		}
		return fmt.Errorf("deploy: definition %q is invalid", name)
	}

	// Update in place when the processor exists; create it otherwise.
	_, err = client.GetProcessor(ctx, name)
	switch {
	case err == nil:
		if err := client.UpdateProcessor(ctx, def); err != nil {
			return err
		}
		slog.Info("processor updated", "processor", name)
	case errors.Is(err, controlplane.ErrNotFound):
		if err := client.CreateProcessor(ctx, def); err != nil {
			return err
		}
		slog.Info("processor created", "processor", name)
	default:
		return err
	}
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("delete")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("delete: exactly one processor name required")
	}
	name := fs.Arg(0)

	if err := controlplane.New(cfg.ControlPlane).DeleteProcessor(ctx, name); err != nil {
		return err
	}
	slog.Info("processor deleted", "processor", name)
	return nil
}

func runWatch(ctx context.Context, args []string) error {
	fs, configPath, logLevel, logFormat := newFlagSet("watch")
	strict := fs.Bool("strict", false, "treat a missing output stage as an error")
	cfg, err := setup(fs, args, configPath, logLevel, logFormat)
	if err != nil {
		return err
	}

	client := controlplane.New(cfg.ControlPlane)
	connections := client.KnownConnectionNames(ctx, cfg.ConnectionNames())

	w := &watch.Watcher{
		Dir:         cfg.Processors.Dir,
		Connections: connections,
		Mode:        modeFor(*strict, cfg),
		OnReport: func(r watch.Report) {
			if r.Err != nil {
				return // already logged by the watcher
			}
			if err := printJSON(map[string]any{
				"name":       r.Name,
				"validation": r.Validation,
				"score":      r.Score,
			}); err != nil {
				slog.Error("writing report failed", "err", err)
			}
		},
	}

	// Config edits take effect without restarting: re-resolve the
	// connection set and strictness whenever the file changes.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			conns := client.KnownConnectionNames(ctx, next.ConnectionNames())
			w.SetRules(conns, modeFor(*strict, next))
			slog.Info("validation rules reloaded", "connections", conns)
		})
		if err != nil {
			slog.Warn("config watch unavailable", "err", err)
		}
	}()

	return w.Run(ctx)
}
