// Command worker-entry is the binary an editor extension host launches
// as the child process's "run this module" target: it reads
// CHILD_TRANSPORT_ADDR from the environment, as a real editor-embedded
// worker would, and calls workerside.Run with a FakeHost standing in for
// the editor's actual test-runner internals.
package main

import (
	"context"
	"os"

	"github.com/andrew-w-ross/vscode-test-pool/internal/config"
	"github.com/andrew-w-ross/vscode-test-pool/internal/logger"
	"github.com/andrew-w-ross/vscode-test-pool/workerside"
)

func main() {
	var cfg workerside.Config
	config.MustLoad(&cfg)

	log := logger.New(logger.WithDevelopment("worker-entry"))
	if cfg.Debug {
		log.Info("worker debug mode requested via environment")
	}

	err := workerside.Run(context.Background(), workerside.NewFakeHost(), workerside.WithLogger(log))
	if err != nil {
		log.Error("worker runtime exited with error", logger.Error(err))
		os.Exit(1)
	}
}
