package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/cfn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/replicas"
	"github.com/nebari-dev/eks-ingress-stack/pkg/resolver"
)

// PropertyInstallerFunction overrides the handler's default installer target
const PropertyInstallerFunction = "InstallerFunction"

// Handler serves the trigger as a custom resource. The replica count comes
// from the resolver's helm_values attribute when the stack wires it in, and
// is otherwise resolved from ssm_parameter_name.
type Handler struct {
	trigger          *Trigger
	store            paramstore.Store
	defaultInstaller string
}

// NewHandler returns a Handler. store may be nil when every event carries
// helm_values.
func NewHandler(trigger *Trigger, store paramstore.Store, defaultInstaller string) *Handler {
	return &Handler{
		trigger:          trigger,
		store:            store,
		defaultInstaller: defaultInstaller,
	}
}

// Handle dispatches Create and Update to the installer and echoes the
// physical id on Delete without any calls.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) (json.RawMessage, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "trigger.Handle")
	defer span.End()

	requestType, err := lifecycle.ParseRequestType(event.RequestType)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("request_type", string(requestType)))

	switch requestType {
	case lifecycle.RequestCreate, lifecycle.RequestUpdate:
		req, err := h.buildRequest(ctx, event)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return h.trigger.Dispatch(ctx, req)

	case lifecycle.RequestDelete:
		slog.Info("No actions for deletion", "physical_id", event.PhysicalResourceID)
		data, err := json.Marshal(lifecycle.Response{PhysicalResourceID: event.PhysicalResourceID})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to marshal delete response: %w", err)
		}
		return data, nil

	default:
		err := &lifecycle.InvalidRequestError{Field: "RequestType", Value: string(requestType), Reason: "invalid request type"}
		span.RecordError(err)
		return nil, err
	}
}

func (h *Handler) buildRequest(ctx context.Context, event cfn.Event) (InstallationRequest, error) {
	props, err := lifecycle.ParseHelmChartProperties(event)
	if err != nil {
		return InstallationRequest{}, err
	}

	installer, _, err := lifecycle.OptionalStringProperty(event, PropertyInstallerFunction)
	if err != nil {
		return InstallationRequest{}, err
	}
	if installer == "" {
		installer = h.defaultInstaller
	}

	replicaCount, err := h.replicaCount(ctx, event)
	if err != nil {
		return InstallationRequest{}, err
	}

	return InstallationRequest{
		InstallerTarget: installer,
		Repository:      props.Repository,
		Chart:           props.Chart,
		Version:         props.Version,
		Release:         props.Release,
		ClusterName:     props.ClusterName,
		Namespace:       props.Namespace,
		ReplicaCount:    replicaCount,
	}, nil
}

func (h *Handler) replicaCount(ctx context.Context, event cfn.Event) (int, error) {
	helmValues, ok, err := lifecycle.OptionalStringProperty(event, resolver.AttributeHelmValues)
	if err != nil {
		return 0, err
	}
	if ok && helmValues != "" {
		values, err := replicas.Parse(helmValues)
		if err != nil || values.Controller.ReplicaCount < 1 {
			return 0, &lifecycle.InvalidRequestError{
				Field:  "ResourceProperties." + resolver.AttributeHelmValues,
				Value:  helmValues,
				Reason: "malformed helm values",
			}
		}
		return values.Controller.ReplicaCount, nil
	}

	name, err := lifecycle.StringProperty(event, resolver.PropertyParameterName)
	if err != nil {
		return 0, err
	}
	if h.store == nil {
		return 0, fmt.Errorf("no configuration store available to resolve %s", name)
	}

	values, err := resolver.Resolve(ctx, h.store, name)
	if err != nil {
		return 0, err
	}
	return values.Controller.ReplicaCount, nil
}
