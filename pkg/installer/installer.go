// Package installer implements the chart installer custom resource. It is the
// function the trigger dispatches to: it resolves cluster credentials and
// applies or removes a Helm release.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"helm.sh/helm/v3/pkg/chartutil"

	"github.com/nebari-dev/eks-ingress-stack/pkg/helm"
	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
)

// ClusterAccess returns a kubeconfig for a named cluster
type ClusterAccess interface {
	Kubeconfig(ctx context.Context, clusterName string) ([]byte, error)
}

// Releaser applies and removes chart releases
type Releaser interface {
	Apply(ctx context.Context, kubeconfig []byte, rel helm.ChartRelease) (*helm.ReleaseInfo, error)
	Uninstall(ctx context.Context, kubeconfig []byte, namespace, name string, timeout time.Duration) error
}

// Options tune how releases are applied
type Options struct {
	Timeout time.Duration
	Wait    bool
}

// Handler serves chart resource events
type Handler struct {
	access   ClusterAccess
	releaser Releaser
	opts     Options
}

// NewHandler returns a Handler
func NewHandler(access ClusterAccess, releaser Releaser, opts Options) *Handler {
	return &Handler{access: access, releaser: releaser, opts: opts}
}

// Handle routes an event by resource type, then by lifecycle tag
func (h *Handler) Handle(ctx context.Context, event cfn.Event) (lifecycle.Response, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "installer.Handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("resource_type", event.ResourceType),
		attribute.String("request_type", string(event.RequestType)),
	)

	switch event.ResourceType {
	case lifecycle.ResourceTypeHelmChart, lifecycle.ResourceTypeCDKHelmChart:
	default:
		err := &lifecycle.InvalidRequestError{Field: "ResourceType", Value: event.ResourceType, Reason: "unknown resource type"}
		span.RecordError(err)
		return lifecycle.Response{}, err
	}

	requestType, err := lifecycle.ParseRequestType(event.RequestType)
	if err != nil {
		span.RecordError(err)
		return lifecycle.Response{}, err
	}

	props, err := lifecycle.ParseHelmChartProperties(event)
	if err != nil {
		span.RecordError(err)
		return lifecycle.Response{}, err
	}

	span.SetAttributes(
		attribute.String("cluster_name", props.ClusterName),
		attribute.String("release", props.Release),
		attribute.String("namespace", props.Namespace),
	)

	var resp lifecycle.Response
	switch requestType {
	case lifecycle.RequestCreate:
		resp, err = h.apply(ctx, props, props.PhysicalID())
	case lifecycle.RequestUpdate:
		resp, err = h.apply(ctx, props, stablePhysicalID(event, props))
	case lifecycle.RequestDelete:
		resp, err = h.remove(ctx, event, props)
	default:
		err = &lifecycle.InvalidRequestError{Field: "RequestType", Value: string(requestType), Reason: "invalid request type"}
	}
	if err != nil {
		span.RecordError(err)
		return lifecycle.Response{}, err
	}
	return resp, nil
}

func (h *Handler) apply(ctx context.Context, props lifecycle.HelmChartProperties, physicalID string) (lifecycle.Response, error) {
	values, err := parseValues(props.Values)
	if err != nil {
		return lifecycle.Response{}, err
	}

	kubeconfig, err := h.access.Kubeconfig(ctx, props.ClusterName)
	if err != nil {
		return lifecycle.Response{}, fmt.Errorf("failed to get access to cluster %s: %w", props.ClusterName, err)
	}

	slog.Info("Applying chart",
		"cluster", props.ClusterName,
		"chart", props.Chart,
		"release", props.Release,
		"namespace", props.Namespace,
	)

	info, err := h.releaser.Apply(ctx, kubeconfig, helm.ChartRelease{
		Repository: props.Repository,
		Chart:      props.Chart,
		Version:    props.Version,
		Name:       props.Release,
		Namespace:  props.Namespace,
		Values:     values,
		Wait:       h.opts.Wait,
		Timeout:    h.opts.Timeout,
	})
	if err != nil {
		return lifecycle.Response{}, err
	}

	slog.Info("Chart applied", "release", info.Name, "revision", info.Revision, "status", info.Status, "upgraded", info.Upgraded)

	return lifecycle.Response{
		PhysicalResourceID: physicalID,
		Data: map[string]string{
			"Release":  info.Name,
			"Revision": strconv.Itoa(info.Revision),
			"Status":   info.Status,
		},
	}, nil
}

func (h *Handler) remove(ctx context.Context, event cfn.Event, props lifecycle.HelmChartProperties) (lifecycle.Response, error) {
	physicalID := stablePhysicalID(event, props)

	kubeconfig, err := h.access.Kubeconfig(ctx, props.ClusterName)
	if err != nil {
		return lifecycle.Response{}, fmt.Errorf("failed to get access to cluster %s: %w", props.ClusterName, err)
	}

	slog.Info("Uninstalling chart", "cluster", props.ClusterName, "release", props.Release, "namespace", props.Namespace)

	if err := h.releaser.Uninstall(ctx, kubeconfig, props.Namespace, props.Release, h.opts.Timeout); err != nil {
		return lifecycle.Response{}, err
	}

	return lifecycle.Response{PhysicalResourceID: physicalID}, nil
}

// stablePhysicalID keeps the id CloudFormation already tracks. A new id on
// Update would make CloudFormation delete the release under the old one.
func stablePhysicalID(event cfn.Event, props lifecycle.HelmChartProperties) string {
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	return props.PhysicalID()
}

// parseValues decodes the string-embedded values document. An empty string
// means no overrides.
func parseValues(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	values, err := chartutil.ReadValues([]byte(raw))
	if err != nil {
		return nil, &lifecycle.InvalidRequestError{
			Field:  "ResourceProperties.Values",
			Value:  raw,
			Reason: "values are not a valid JSON or YAML document",
		}
	}
	return values.AsMap(), nil
}
