package main

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/resolver"
	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run the configuration resolver against the live parameter",
	Long: `Send a Create event for the stack's parameter through the resolver and
print the response the stack would receive.`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cmd.resolve")
	defer span.End()

	ctx, cleanupStatus := status.StartHandler(ctx, statusLogHandler())
	defer cleanupStatus()

	cfg, clients, err := loadStack(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	handler := resolver.NewHandler(paramstore.NewSSMStore(clients.SSMClient))
	resp, err := handler.Handle(ctx, resolveEvent(cfg.Parameter.Name))
	if err != nil {
		span.RecordError(err)
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal resolver response: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// resolveEvent is the Create event the stack sends the resolver
func resolveEvent(parameterName string) cfn.Event {
	return cfn.Event{
		RequestType:  cfn.RequestCreate,
		ResourceType: "Custom::EnvironmentResolver",
		ResourceProperties: map[string]interface{}{
			resolver.PropertyParameterName: parameterName,
		},
	}
}
