package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/awsclient"
	"github.com/nebari-dev/eks-ingress-stack/pkg/config"
	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/replicas"
	"github.com/nebari-dev/eks-ingress-stack/pkg/resolver"
	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
	"github.com/nebari-dev/eks-ingress-stack/pkg/trigger"
)

var (
	deployDryRun        bool
	deploySkipPreflight bool

	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Resolve the replica count and dispatch the chart installation",
		Long: `Resolve the environment parameter into a replica count, then invoke the
installer function synchronously with the chart installation request.

Use --dry-run to print the installation request without invoking anything.`,
		Args: cobra.NoArgs,
		RunE: runDeploy,
	}
)

func init() {
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Print the installation request without invoking the installer")
	deployCmd.Flags().BoolVar(&deploySkipPreflight, "skip-preflight", false, "Skip the IAM permission check")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cmd.deploy")
	defer span.End()

	span.SetAttributes(
		attribute.String("config.file", stackFile),
		attribute.Bool("dry_run", deployDryRun),
	)

	ctx, cleanupStatus := status.StartHandler(ctx, statusLogHandler())
	defer cleanupStatus()

	cfg, clients, err := loadStack(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !deploySkipPreflight && !deployDryRun {
		result, err := awsclient.ValidateCredentials(ctx, clients.STSClient, clients.IAMClient, awsclient.OperationDeploy)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if err := missingPermissionsError(result); err != nil {
			span.RecordError(err)
			return err
		}
	}

	values, err := resolver.Resolve(ctx, paramstore.NewSSMStore(clients.SSMClient), cfg.Parameter.Name)
	if err != nil {
		span.RecordError(err)
		return err
	}

	req := installationRequest(cfg, values)
	span.SetAttributes(attribute.Int("replica_count", req.ReplicaCount))

	if deployDryRun {
		return writeDryRun(cmd.OutOrStdout(), req)
	}

	slog.Info("Dispatching installation", "installer", req.InstallerTarget, "release", req.Release, "replica_count", req.ReplicaCount)

	resp, err := trigger.New(clients.LambdaClient).Dispatch(ctx, req)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp, "", "  "); err != nil {
		// Not JSON; print the installer response as received
		fmt.Fprintln(cmd.OutOrStdout(), string(resp))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())

	return nil
}

func installationRequest(cfg *config.StackConfig, values replicas.Values) trigger.InstallationRequest {
	return trigger.InstallationRequest{
		InstallerTarget: cfg.InstallerFunction,
		Repository:      cfg.Chart.Repository,
		Chart:           cfg.Chart.Name,
		Version:         cfg.Chart.Version,
		Release:         cfg.Chart.Release,
		ClusterName:     cfg.ClusterName,
		Namespace:       cfg.Chart.Namespace,
		ReplicaCount:    values.Controller.ReplicaCount,
	}
}

func writeDryRun(w io.Writer, req trigger.InstallationRequest) error {
	payload, err := req.Payload()
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return fmt.Errorf("failed to format installation request: %w", err)
	}

	fmt.Fprintf(w, "Installer: %s\n", req.InstallerTarget)
	fmt.Fprintln(w, pretty.String())
	return nil
}

func missingPermissionsError(result *awsclient.CredentialValidationResult) error {
	if len(result.MissingPermissions) == 0 {
		return nil
	}
	return fmt.Errorf("%s is missing required permissions: %s", result.Arn, strings.Join(result.MissingPermissions, ", "))
}
