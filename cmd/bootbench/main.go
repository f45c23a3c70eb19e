package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/tinyrange/bootbench/internal/config"
	"github.com/tinyrange/bootbench/internal/guest"
	"github.com/tinyrange/bootbench/internal/run"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

type bootbench struct {
	stdout *os.File
	stderr *os.File
}

func (b *bootbench) run(args []string) error {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)

	configFile := fs.String("config", "", "YAML configuration file")
	guests := fs.String("guests", "nosev,sev,seves,snp", "comma separated guest types to benchmark, in order")
	window := fs.Duration("window", 0, "how long to let each guest boot before stopping it (overrides config)")
	socket := fs.String("socket", "", "firmware debug socket path (overrides config)")
	outDir := fs.String("out", "", "directory for timeline images (overrides config)")
	rawDir := fs.String("raw", "", "write the raw firmware log of each run to this directory")
	verbose := fs.Bool("v", false, "enable debug logging")
	dryRun := fs.Bool("dry-run", false, "print the hypervisor command for each guest and exit")
	writeConfig := fs.String("write-config", "", "write the effective configuration to this file and exit")

	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(b.stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	if *window > 0 {
		cfg.Window = *window
	}
	if *socket != "" {
		cfg.DebugSocket = *socket
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if *writeConfig != "" {
		if err := config.Write(*writeConfig, cfg); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		return nil
	}

	types, err := guest.ParseTypes(*guests)
	if err != nil {
		return err
	}

	logger := slog.Default()
	launcher := &guest.Launcher{Paths: cfg.Paths(), Logger: logger}

	if *dryRun {
		for _, t := range types {
			fmt.Fprintf(b.stdout, "%s: %s\n", t, launcher.CommandLine(t))
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	ctrl := &run.Controller{
		Socket:        cfg.DebugSocket,
		Source:        launcher,
		Keypoints:     cfg.Keypoints,
		Table:         cfg.Table(),
		Window:        cfg.Window,
		AcceptTimeout: cfg.AcceptTimeout,
		DrainTimeout:  cfg.DrainTimeout,
		RawDir:        *rawDir,
		Summary:       b.stdout,
		Logger:        logger,
		Colour:        term.IsTerminal(int(b.stdout.Fd())),
	}
	if term.IsTerminal(int(b.stderr.Fd())) {
		ctrl.Progress = b.stderr
	}

	start := time.Now()

	results, err := ctrl.RunAll(ctx, types)

	slog.Info("benchmark finished",
		"succeeded", len(results),
		"failed", len(types)-len(results),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if err != nil {
		return fmt.Errorf("one or more runs failed: %w", err)
	}
	return nil
}

func main() {
	b := bootbench{stdout: os.Stdout, stderr: os.Stderr}

	if err := b.run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bootbench: %v\n", err)
		os.Exit(1)
	}
}
