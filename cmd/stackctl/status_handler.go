package main

import (
	"log/slog"

	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
)

// statusLogHandler logs progress updates through the default logger, which
// PersistentPreRun points at stderr.
func statusLogHandler() status.Handler {
	return status.LogHandler(slog.Default())
}
