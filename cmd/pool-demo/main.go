// Command pool-demo wires pool.Worker end to end against an in-process
// DemoLauncher instead of a real editor binary, grounded on
// ChuLiYu-raft-recovery's cmd/demo pattern of exercising a library
// through a runnable stand-in.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrew-w-ross/vscode-test-pool/internal/config"
	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
	"github.com/andrew-w-ross/vscode-test-pool/internal/logger"
	"github.com/andrew-w-ross/vscode-test-pool/pool"
	"github.com/andrew-w-ross/vscode-test-pool/pool/metrics"
	"github.com/andrew-w-ross/vscode-test-pool/workerside"
)

func main() {
	log := logger.New(logger.WithDevelopment("pool-demo"))

	var cfg pool.Config
	config.MustLoad(&cfg)

	collector := metrics.NewCollector(prometheus.NewRegistry())

	launcher := &DemoLauncher{log: log}
	worker := pool.NewWorker(1, cfg, launcher,
		pool.WithLogger(log),
		pool.WithMetrics(collector),
		pool.WithPoolName("demo-pool"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx, nil); err != nil {
		log.Error("worker start failed", logger.Error(err))
		os.Exit(1)
	}
	log.Info("worker ready", logger.WorkerID(worker.ID()))

	session := envelope.SerializedSession{
		Pool:        "demo-pool",
		WorkerID:    worker.ID(),
		ProjectName: "demo-project",
		Files:       []envelope.FileSpec{{Filepath: "demo.spec.ts"}},
	}

	future, err := worker.RunTests(session)
	if err != nil {
		log.Error("run dispatch failed", logger.Error(err))
	} else if resp, err := future.Await(); err != nil {
		log.Error("run failed", logger.Error(err))
	} else {
		fmt.Printf("run response: id=%s success=%v\n", resp.ID, resp.Success)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error("worker stop reported errors", logger.Error(err))
		os.Exit(1)
	}
	log.Info("worker stopped cleanly")
}

// DemoLauncher implements pool.Launcher by running the worker-side
// runtime in-process against the pool's transport instead of spawning a
// real editor binary. It drives workerside.Run directly rather than
// exec.Command, so the demo has no dependency on an installed editor.
//
// CHILD_TRANSPORT_ADDR is a process-wide environment variable, so this
// launcher assumes at most one live launch at a time, adequate for a
// single-worker demo, not for a production launcher.
type DemoLauncher struct {
	log *slog.Logger
}

type demoHandle struct {
	cancel context.CancelFunc
	done   chan error
}

func (l *DemoLauncher) Launch(ctx context.Context, spec pool.LaunchSpec) (pool.LaunchHandle, error) {
	if err := os.Setenv(workerside.EndpointEnvVar, spec.TransportAddr); err != nil {
		return nil, fmt.Errorf("pool-demo: set %s: %w", workerside.EndpointEnvVar, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		err := workerside.Run(runCtx, workerside.NewFakeHost(), workerside.WithLogger(l.log))
		done <- err
	}()

	return &demoHandle{cancel: cancel, done: done}, nil
}

func (h *demoHandle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *demoHandle) Kill() error {
	h.cancel()
	return nil
}
