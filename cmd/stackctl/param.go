package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
)

var (
	paramCmd = &cobra.Command{
		Use:   "param",
		Short: "Read or write the environment parameter",
	}

	paramPutCmd = &cobra.Command{
		Use:   "put [value]",
		Short: "Create or overwrite the environment parameter",
		Long: `Write the environment name to the parameter named in the stack file.
The value defaults to parameter.value from the stack file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runParamPut,
	}

	paramGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Print the environment parameter",
		Args:  cobra.NoArgs,
		RunE:  runParamGet,
	}
)

func init() {
	paramCmd.AddCommand(paramPutCmd)
	paramCmd.AddCommand(paramGetCmd)
}

func runParamPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cmd.param.put")
	defer span.End()

	cfg, clients, err := loadStack(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	value := cfg.Parameter.Value
	if len(args) == 1 {
		value = args[0]
	}
	if value == "" {
		err := fmt.Errorf("no value given: pass one as an argument or set parameter.value in %s", stackFile)
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.String("parameter.name", cfg.Parameter.Name),
		attribute.String("parameter.value", value),
	)

	version, err := paramstore.NewSSMStore(clients.SSMClient).Put(ctx, cfg.Parameter.Name, value, cfg.Parameter.Description)
	if err != nil {
		span.RecordError(err)
		return err
	}

	slog.Info("Parameter written", "name", cfg.Parameter.Name, "value", value, "version", version)
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (version %d)\n", cfg.Parameter.Name, value, version)

	return nil
}

func runParamGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cmd.param.get")
	defer span.End()

	cfg, clients, err := loadStack(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	value, err := paramstore.NewSSMStore(clients.SSMClient).Get(ctx, cfg.Parameter.Name)
	if err != nil {
		span.RecordError(err)
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
