package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nebari-dev/eks-ingress-stack/pkg/awsclient"
	"github.com/nebari-dev/eks-ingress-stack/pkg/config"
	"github.com/nebari-dev/eks-ingress-stack/pkg/telemetry"
)

var (
	stackFile string

	// Filesystem the stack file is read from
	appFs = afero.NewOsFs()

	rootCmd = &cobra.Command{
		Use:   "stackctl",
		Short: "Operate the EKS ingress controller stack",
		Long: `stackctl manages the environment parameter that sizes the ingress
controller and runs the resolver and deployment trigger against live AWS
services, using the same code the stack's functions run.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))
			slog.SetDefault(logger)
		},
	}
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&stackFile, "file", "f", "stack.yaml", "Path to stack.yaml file")

	rootCmd.AddCommand(paramCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadStack parses the stack file and builds AWS clients for its region
func loadStack(ctx context.Context) (*config.StackConfig, *awsclient.Clients, error) {
	cfg, err := config.ParseStackConfig(ctx, appFs, stackFile)
	if err != nil {
		return nil, nil, err
	}

	clients, err := awsclient.NewClients(ctx, cfg.Region)
	if err != nil {
		return nil, nil, err
	}

	return cfg, clients, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, shutdown, _, err := telemetry.Setup(ctx, "stackctl")
	if err != nil {
		slog.Error("Failed to setup telemetry", "error", err)
		os.Exit(1)
	}

	err = rootCmd.ExecuteContext(ctx)

	if shutdownErr := shutdown(context.Background()); shutdownErr != nil {
		slog.Error("Failed to shutdown telemetry", "error", shutdownErr)
	}

	if err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
