package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"helm.sh/helm/v3/pkg/chartutil"
)

const (
	version = "1.0.0"
	commit  = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, args []string) error {
	tracer := otel.Tracer("eks-ingress-stack")
	_, span := tracer.Start(cmd.Context(), "cmd.version")
	defer span.End()

	slog.Info("Version command executed", "version", version, "commit", commit)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "stackctl\n")
	fmt.Fprintf(out, "Version: %s\n", version)
	fmt.Fprintf(out, "Commit: %s\n", commit)
	fmt.Fprintf(out, "Helm SDK: %s\n", chartutil.DefaultCapabilities.HelmVersion.Version)

	return nil
}
