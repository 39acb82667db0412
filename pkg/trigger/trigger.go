// Package trigger builds chart installation requests carrying the resolved
// replica count and dispatches them to the installer function.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
	"github.com/nebari-dev/eks-ingress-stack/pkg/replicas"
	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
)

// LambdaClientAPI defines the Lambda operations used by the trigger
type LambdaClientAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

var _ LambdaClientAPI = (*lambda.Client)(nil)

// InstallationRequest describes one chart install or upgrade
type InstallationRequest struct {
	// InstallerTarget is the name or ARN of the installer function
	InstallerTarget string
	Repository      string
	Chart           string
	Version         string
	Release         string
	ClusterName     string
	Namespace       string
	ReplicaCount    int
}

// ValuesPayload returns the chart values as the string the installer expects
// in its Values property.
func (r InstallationRequest) ValuesPayload() (string, error) {
	return replicas.NewValues(r.ReplicaCount).Compact()
}

type invocationPayload struct {
	RequestType        string                        `json:"RequestType"`
	ResourceType       string                        `json:"ResourceType"`
	ResourceProperties lifecycle.HelmChartProperties `json:"ResourceProperties"`
}

// Payload returns the JSON document sent to the installer
func (r InstallationRequest) Payload() ([]byte, error) {
	values, err := r.ValuesPayload()
	if err != nil {
		return nil, err
	}

	// The installer falls back to the default namespace on its own
	namespace := r.Namespace
	if namespace == lifecycle.DefaultNamespace {
		namespace = ""
	}

	payload := invocationPayload{
		RequestType:  string(lifecycle.RequestUpdate),
		ResourceType: lifecycle.ResourceTypeHelmChart,
		ResourceProperties: lifecycle.HelmChartProperties{
			Repository:  r.Repository,
			Chart:       r.Chart,
			Version:     r.Version,
			Release:     r.Release,
			ClusterName: r.ClusterName,
			Namespace:   namespace,
			Values:      values,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal installation request: %w", err)
	}
	return data, nil
}

// Trigger dispatches installation requests through Lambda
type Trigger struct {
	client LambdaClientAPI
}

// New returns a Trigger that invokes the installer through client
func New(client LambdaClientAPI) *Trigger {
	return &Trigger{client: client}
}

// Dispatch invokes the installer synchronously and returns its response
// payload untouched. Transport failures and function errors are returned as
// *lifecycle.DispatchError; nothing is retried.
func (t *Trigger) Dispatch(ctx context.Context, req InstallationRequest) (json.RawMessage, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "trigger.Dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("installer", req.InstallerTarget),
		attribute.String("chart", req.Chart),
		attribute.String("release", req.Release),
		attribute.String("cluster_name", req.ClusterName),
		attribute.Int("replica_count", req.ReplicaCount),
	)

	if req.InstallerTarget == "" {
		err := &lifecycle.InvalidRequestError{Field: "InstallerTarget", Reason: "installer function is not configured"}
		span.RecordError(err)
		return nil, err
	}

	payload, err := req.Payload()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	status.Send(ctx, status.NewUpdate(status.LevelProgress, "Dispatching chart installation").
		WithResource("helm-release").
		WithAction("dispatching").
		WithMetadata("release", req.Release).
		WithMetadata("replica_count", req.ReplicaCount))

	out, err := t.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(req.InstallerTarget),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		span.RecordError(err)
		return nil, &lifecycle.DispatchError{Target: req.InstallerTarget, Err: err}
	}

	if out.FunctionError != nil {
		err := &lifecycle.DispatchError{
			Target: req.InstallerTarget,
			Err:    fmt.Errorf("installer returned %s: %s", aws.ToString(out.FunctionError), string(out.Payload)),
		}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("status_code", int(out.StatusCode)))
	slog.Info("Installer responded", "installer", req.InstallerTarget, "release", req.Release, "status_code", out.StatusCode)

	status.Send(ctx, status.NewUpdate(status.LevelSuccess, "Chart installation dispatched").
		WithResource("helm-release").
		WithAction("dispatched").
		WithMetadata("release", req.Release))

	return json.RawMessage(out.Payload), nil
}
