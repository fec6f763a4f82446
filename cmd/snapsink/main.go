package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/config"
	"github.com/snapsink/snapsink/pkg/volume"
	s3volume "github.com/snapsink/snapsink/pkg/volume/s3"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	initConfig := flag.Bool("init", false, "Write a sample config file and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with -init")
	mode := flag.String("mode", "list", "Operation mode (list, transfer, gc)")
	to := flag.String("to", "", "Volume ID to transfer")
	from := flag.String("from", "", "Parent volume ID for an incremental transfer (empty sends the whole volume)")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	minAge := flag.Duration("min-age", 0, "Minimum upload age before gc may abort it (overrides config)")
	dryRun := flag.Bool("dry-run", false, "gc only reports what it would abort")
	flag.Parse()

	if *initConfig {
		path, err := config.InitConfig(*force)
		if err != nil {
			log.Fatalf("Failed to write config file: %v", err)
		}
		fmt.Printf("Config file written to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure logger
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)

	out, err := openLogOutput(cfg.Logging.Output)
	if err != nil {
		log.Fatalf("Failed to open log output: %v", err)
	}
	logger.SetOutput(out)

	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Flags beat the config file, but only when actually given: the zero
	// value of -min-age and -dry-run must not clobber configured values.
	flagsSeen := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { flagsSeen[f.Name] = true })
	if flagsSeen["min-age"] {
		cfg.GC.MinAge = *minAge
	}
	if flagsSeen["dry-run"] {
		cfg.GC.DryRun = *dryRun
	}

	// Create cancellable context so an interrupt aborts the current
	// operation between chunks instead of killing it mid-flight
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn("%s received, cancelling...", sig)
		cancel()
	}()

	jnl, err := config.CreateJournal(&cfg.Journal)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	if jnl != nil {
		defer jnl.Close()
	}

	remote, err := config.CreateStore(ctx, &cfg.Remote, jnl)
	if err != nil {
		log.Fatalf("Failed to create remote store: %v", err)
	}

	// gc runs against the remote alone; the other modes read the local
	// store and need its backing mount present.
	var local volume.Store
	if *mode == "list" || *mode == "transfer" {
		local, err = config.CreateStore(ctx, &cfg.Local, jnl)
		if err != nil {
			log.Fatalf("Failed to create local store: %v", err)
		}
	}

	var runErr error
	switch *mode {
	case "list":
		runErr = runList(ctx, local, remote)
	case "transfer":
		runErr = runTransfer(ctx, local, remote, volume.ID(*to), volume.ID(*from))
	case "gc":
		opts := s3volume.ReconcileOptions{MinAge: cfg.GC.MinAge, DryRun: cfg.GC.DryRun}
		runErr = runGC(ctx, remote, opts)
	default:
		log.Fatalf("Unknown mode %q (valid modes: list, transfer, gc)", *mode)
	}

	if runErr != nil {
		logger.Error("%v", runErr)
		os.Exit(1)
	}
}

// openLogOutput resolves the configured log destination. Anything other
// than the two standard streams is treated as a file path and appended to.
func openLogOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	}
}

// runList refreshes both stores and prints their volumes and diffs.
func runList(ctx context.Context, local, remote volume.Store) error {
	for _, st := range []volume.Store{local, remote} {
		if err := st.Refresh(ctx); err != nil {
			return fmt.Errorf("failed to refresh %s: %w", st, err)
		}
	}

	printStore("Local", local)
	printStore("Remote", remote)
	return nil
}

func printStore(role string, st volume.Store) {
	fmt.Printf("%s store: %s\n", role, st)
	for _, v := range st.Volumes() {
		fmt.Printf("  volume %s\n", v)
	}
	for d := range st.Diffs() {
		fmt.Printf("  diff   %s\n", d)
	}
}

// runTransfer replicates one named diff from the local store into the
// remote store. Which diff to send is the caller's decision; this command
// does not plan paths across the graph.
func runTransfer(ctx context.Context, local, remote volume.Store, to, from volume.ID) error {
	if to == volume.NoVolume {
		return errors.New("transfer mode requires -to")
	}

	if err := local.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh local store: %w", err)
	}
	if err := remote.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh remote store: %w", err)
	}

	if remote.HasEdge(to, from) {
		logger.Info("Remote already holds %s from %s, nothing to transfer", to, fromName(from))
		return nil
	}

	for d := range local.Edges(from) {
		if d.To != to {
			continue
		}

		logger.Info("Transferring %s", d)
		if err := remote.Receive(ctx, d); err != nil {
			return fmt.Errorf("transfer of %s failed: %w", d, err)
		}
		logger.Info("Transfer complete: %s", d)
		return nil
	}

	return fmt.Errorf("local store lists no diff producing %s from %s", to, fromName(from))
}

// runGC reconciles interrupted uploads left behind in the remote store.
func runGC(ctx context.Context, remote volume.Store, opts s3volume.ReconcileOptions) error {
	st, ok := remote.(*s3volume.Store)
	if !ok {
		return errors.New("gc mode requires an S3 remote store")
	}

	stats, err := st.Reconcile(ctx, opts)
	if stats != nil {
		fmt.Printf("Reconciliation: %s\n", stats.Summary())
	}
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	return nil
}

func fromName(from volume.ID) string {
	if from == volume.NoVolume {
		return "scratch"
	}
	return string(from)
}
