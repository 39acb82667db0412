// Package resolver implements the configuration resolver custom resource:
// it reads the environment name from the configuration store and returns the
// ingress chart values for it.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/cfn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/replicas"
)

const (
	// PropertyParameterName names the configuration entry to resolve
	PropertyParameterName = "ssm_parameter_name"

	// AttributeHelmValues is the response data key holding the chart values
	AttributeHelmValues = "helm_values"
)

// Handler serves resolver lifecycle events
type Handler struct {
	store paramstore.Store
}

// NewHandler returns a Handler reading from store
func NewHandler(store paramstore.Store) *Handler {
	return &Handler{store: store}
}

// Handle dispatches a lifecycle event. Create keys the resource by the
// parameter name, Update keeps the caller's physical id, Delete touches
// nothing.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) (lifecycle.Response, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "resolver.Handle")
	defer span.End()

	requestType, err := lifecycle.ParseRequestType(event.RequestType)
	if err != nil {
		span.RecordError(err)
		return lifecycle.Response{}, err
	}

	span.SetAttributes(
		attribute.String("request_type", string(requestType)),
		attribute.String("physical_resource_id", event.PhysicalResourceID),
	)

	switch requestType {
	case lifecycle.RequestCreate:
		name, err := lifecycle.StringProperty(event, PropertyParameterName)
		if err != nil {
			span.RecordError(err)
			return lifecycle.Response{}, err
		}
		slog.Info("Creating resolved configuration", "parameter", name)
		return h.resolve(ctx, name, name)

	case lifecycle.RequestUpdate:
		name, err := lifecycle.StringProperty(event, PropertyParameterName)
		if err != nil {
			span.RecordError(err)
			return lifecycle.Response{}, err
		}
		slog.Info("Updating resolved configuration", "physical_id", event.PhysicalResourceID, "parameter", name)
		return h.resolve(ctx, event.PhysicalResourceID, name)

	case lifecycle.RequestDelete:
		slog.Info("No actions for deletion", "physical_id", event.PhysicalResourceID)
		return lifecycle.Response{PhysicalResourceID: event.PhysicalResourceID}, nil

	default:
		err := &lifecycle.InvalidRequestError{Field: "RequestType", Value: string(requestType), Reason: "invalid request type"}
		span.RecordError(err)
		return lifecycle.Response{}, err
	}
}

func (h *Handler) resolve(ctx context.Context, physicalID, name string) (lifecycle.Response, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "resolver.resolve")
	defer span.End()

	values, err := Resolve(ctx, h.store, name)
	if err != nil {
		span.RecordError(err)
		return lifecycle.Response{}, err
	}

	encoded, err := values.Spaced()
	if err != nil {
		span.RecordError(err)
		return lifecycle.Response{}, err
	}

	span.SetAttributes(attribute.Int("replica_count", values.Controller.ReplicaCount))
	slog.Info("Resolved helm values", "parameter", name, "helm_values", encoded)

	return lifecycle.Response{
		PhysicalResourceID: physicalID,
		Data: map[string]string{
			AttributeHelmValues: encoded,
		},
	}, nil
}

// Resolve reads the named environment from store and maps it to chart values.
// It is shared with callers that resolve out of band.
func Resolve(ctx context.Context, store paramstore.Store, name string) (replicas.Values, error) {
	environment, err := store.Get(ctx, name)
	if err != nil {
		return replicas.Values{}, fmt.Errorf("failed to read environment from %s: %w", name, err)
	}
	return replicas.ForEnvironmentValues(environment), nil
}
