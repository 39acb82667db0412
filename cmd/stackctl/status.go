package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/cluster"
	"github.com/nebari-dev/eks-ingress-stack/pkg/kubernetes"
	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/resolver"
	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
)

var (
	statusWait    bool
	statusTimeout time.Duration

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Compare the controller's running replicas with the resolved count",
		Long: `Resolve the environment parameter, then read the controller deployments of
the release from the cluster and report their replicas against the resolved
count.

Use --wait to block until the deployments have settled at that count.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusWait, "wait", false, "Wait until the deployments run the resolved replica count")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Minute, "How long --wait polls before giving up")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cmd.status")
	defer span.End()

	ctx, cleanupStatus := status.StartHandler(ctx, statusLogHandler())
	defer cleanupStatus()

	cfg, clients, err := loadStack(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	values, err := resolver.Resolve(ctx, paramstore.NewSSMStore(clients.SSMClient), cfg.Parameter.Name)
	if err != nil {
		span.RecordError(err)
		return err
	}
	want := int32(values.Controller.ReplicaCount)

	span.SetAttributes(
		attribute.String("cluster_name", cfg.ClusterName),
		attribute.Int("replica_count", int(want)),
	)

	kubeconfig, err := cluster.NewAccess(clients.EKSClient, clients.Presigner()).Kubeconfig(ctx, cfg.ClusterName)
	if err != nil {
		span.RecordError(err)
		return err
	}

	client, err := kubernetes.NewClusterClient(ctx, kubeconfig)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if statusWait {
		if err := kubernetes.WaitForReplicas(ctx, client, cfg.Chart.Namespace, cfg.Chart.Release, want, 5*time.Second, statusTimeout); err != nil {
			span.RecordError(err)
			return err
		}
	}

	deployments, err := kubernetes.ReleaseDeployments(ctx, client, cfg.Chart.Namespace, cfg.Chart.Release)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := writeStatus(cmd.OutOrStdout(), cfg.Chart.Release, want, deployments); err != nil {
		span.RecordError(err)
		return err
	}

	endpointTimeout := time.Duration(0)
	if statusWait {
		endpointTimeout = statusTimeout
	}
	ep, err := kubernetes.ControllerEndpoint(ctx, client, cfg.Chart.Namespace, cfg.Chart.Release,
		kubernetes.WithEndpointTimeout(endpointTimeout))
	if err != nil {
		// The release may not expose a LoadBalancer service
		slog.Warn("Load balancer endpoint unavailable", "error", err)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nLoad balancer: %s (service %s)\n", ep.Address(), ep.Service)
	return nil
}

func writeStatus(w io.Writer, release string, want int32, deployments []kubernetes.DeploymentReplicas) error {
	if len(deployments) == 0 {
		return fmt.Errorf("no deployments found for release %s", release)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPLOYMENT\tDESIRED\tREADY\tUPDATED\tEXPECTED\tSETTLED")
	for _, d := range deployments {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%t\n", d.Name, d.Desired, d.Ready, d.Updated, want, d.Settled(want))
	}
	return tw.Flush()
}
