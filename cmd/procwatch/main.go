// procwatch launches a command and monitors its entire process tree,
// recording identity, lifecycle and integrity metadata for every process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrzor/procwatch/internal/attributes"
	"github.com/mrzor/procwatch/internal/config"
	"github.com/mrzor/procwatch/internal/launch"
	"github.com/mrzor/procwatch/internal/otel"
	"github.com/mrzor/procwatch/internal/report"
	"github.com/mrzor/procwatch/internal/session"

	"go.opentelemetry.io/otel/trace"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	code, err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	os.Exit(code)
}

// setupOTEL initializes the OTEL provider when an endpoint is configured.
// Returns a nil tracer and a no-op cleanup when span export is disabled.
func setupOTEL(sessionID string) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	if !otelCfg.Enabled() {
		return nil, func() {}, nil
	}

	tp, err := otel.InitProvider(otelCfg, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(tp, shutdownCtx); err != nil {
			log.Printf("Warning: shutting down OTEL provider: %v", err)
		}
	}

	return tp.Tracer("procwatch"), cleanup, nil
}

// acquireRoot launches the configured command, or attaches to an existing
// process when --pid was given. proc is nil in attach mode.
func acquireRoot(cfg *config.Config) (*launch.Proc, launch.Info, error) {
	if cfg.AttachPID != 0 {
		info, err := launch.Attach(cfg.AttachPID)
		if err != nil {
			return nil, launch.Info{}, err
		}
		return nil, info, nil
	}

	proc, err := launch.Start(cfg.Command, cfg.Args)
	if err != nil {
		return nil, launch.Info{}, err
	}
	return proc, proc.Info, nil
}

func run() (int, error) {
	cfg, err := config.ParseArgs(os.Args)
	if err != nil {
		return 0, err
	}
	if cfg.ShowVersion {
		fmt.Printf("procwatch %s (commit: %s, built: %s)\n", version, commit, date)
		return 0, nil
	}

	// Compile attribute expressions up front so a bad expression aborts
	// before anything is launched.
	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes)
	if err != nil {
		return 0, err
	}

	var parent trace.SpanContext
	if cfg.TraceID != "" {
		parent, err = attributes.RemoteParent(cfg.TraceID)
		if err != nil {
			return 0, err
		}
	}

	proc, root, err := acquireRoot(cfg)
	if err != nil {
		return 0, err
	}

	// Live frames repaint stdout; the quiet counters view goes to stderr
	// so the monitored command keeps stdout to itself.
	var live *report.Live
	if cfg.Live {
		live = report.NewLive(os.Stdout, true)
	} else {
		live = report.NewLive(os.Stderr, false)
	}

	sess := session.New(session.Config{
		Root:     root,
		Interval: cfg.Interval,
		NoHash:   cfg.NoHash,
		OnUpdate: live.Update,
	})

	tracer, cleanupOTEL, err := setupOTEL(sess.ID())
	if err != nil {
		return 0, err
	}
	defer cleanupOTEL()

	log.Printf("Starting procwatch %s: monitoring pid %d (%s), session %s",
		version, root.PID, root.Name, sess.ID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		if proc != nil {
			proc.Terminate(5 * time.Second)
		}
		cancel()
	}()

	if err := sess.Run(ctx); err != nil {
		return 0, err
	}

	records := sess.Snapshot()
	if err := report.Table(os.Stdout, records); err != nil {
		return 0, err
	}

	if tracer != nil {
		report.NewSpanReporter(tracer, sess.ID(), evaluator, parent).Emit(records)
	}

	if proc == nil {
		return 0, nil
	}
	<-proc.Done()
	code := proc.ExitCode()
	if code < 0 {
		// Killed by signal; there is no exit code to forward.
		code = 1
	}
	return code, nil
}
