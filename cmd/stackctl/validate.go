package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/awsclient"
	"github.com/nebari-dev/eks-ingress-stack/pkg/config"
)

var (
	validateCreds bool

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate the stack file",
		Long: `Validate the stack.yaml file without calling any function.

Use --validate-creds to also check that the current AWS identity holds the
permissions each command needs.`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
)

func init() {
	validateCmd.Flags().BoolVar(&validateCreds, "validate-creds", false, "Check IAM permissions of the current AWS identity")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cmd.validate")
	defer span.End()

	span.SetAttributes(
		attribute.String("config.file", stackFile),
		attribute.Bool("validate_creds", validateCreds),
	)

	cfg, err := config.ParseStackConfig(ctx, appFs, stackFile)
	if err != nil {
		span.RecordError(err)
		slog.Error("Configuration validation failed", "error", err, "file", stackFile)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Stack file is valid\n")
	fmt.Fprintf(out, "  Cluster: %s (%s)\n", cfg.ClusterName, cfg.Region)
	fmt.Fprintf(out, "  Parameter: %s\n", cfg.Parameter.Name)
	fmt.Fprintf(out, "  Release: %s/%s from %s\n", cfg.Chart.Namespace, cfg.Chart.Release, cfg.Chart.Repository)

	if !validateCreds {
		return nil
	}

	clients, err := awsclient.NewClients(ctx, cfg.Region)
	if err != nil {
		span.RecordError(err)
		return err
	}

	failed := false
	for _, op := range []awsclient.Operation{
		awsclient.OperationParamPut,
		awsclient.OperationResolve,
		awsclient.OperationDeploy,
		awsclient.OperationStatus,
	} {
		result, err := awsclient.ValidateCredentials(ctx, clients.STSClient, clients.IAMClient, op)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if err := missingPermissionsError(result); err != nil {
			failed = true
			fmt.Fprintf(out, "✗ %s: %v\n", op, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s: %s has the required permissions\n", op, result.Arn)
	}

	if failed {
		err := fmt.Errorf("credential validation failed")
		span.RecordError(err)
		return err
	}
	return nil
}
