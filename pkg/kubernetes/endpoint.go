package kubernetes

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

const (
	DefaultEndpointTimeout      = 5 * time.Minute
	DefaultEndpointPollInterval = 5 * time.Second
)

// LoadBalancerEndpoint is the external address AWS assigned to the
// controller's LoadBalancer service.
type LoadBalancerEndpoint struct {
	Service  string
	Hostname string
	IP       string
}

// Address returns the hostname, or the IP when no hostname is assigned
func (e LoadBalancerEndpoint) Address() string {
	if e.Hostname != "" {
		return e.Hostname
	}
	return e.IP
}

// EndpointOption configures ControllerEndpoint
type EndpointOption func(*endpointOptions)

type endpointOptions struct {
	timeout      time.Duration
	pollInterval time.Duration
}

// WithEndpointTimeout bounds how long ControllerEndpoint waits; zero checks once
func WithEndpointTimeout(d time.Duration) EndpointOption {
	return func(o *endpointOptions) { o.timeout = d }
}

// WithEndpointPollInterval sets the interval between checks
func WithEndpointPollInterval(d time.Duration) EndpointOption {
	return func(o *endpointOptions) { o.pollInterval = d }
}

// ControllerEndpoint returns the load balancer address of the release's
// LoadBalancer service, polling until AWS has provisioned it.
func ControllerEndpoint(ctx context.Context, client kubernetes.Interface, namespace, release string, opts ...EndpointOption) (*LoadBalancerEndpoint, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "kubernetes.ControllerEndpoint")
	defer span.End()

	cfg := &endpointOptions{
		timeout:      DefaultEndpointTimeout,
		pollInterval: DefaultEndpointPollInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("release", release),
		attribute.String("timeout", cfg.timeout.String()),
	)

	ep, err := checkEndpoint(ctx, client, namespace, release)
	if err == nil || cfg.timeout == 0 {
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		span.SetAttributes(attribute.String("address", ep.Address()))
		return ep, nil
	}

	deadline := time.After(cfg.timeout)
	ticker := time.NewTicker(cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return nil, fmt.Errorf("context cancelled while waiting for load balancer: %w", ctx.Err())
		case <-deadline:
			err := fmt.Errorf("timed out waiting for load balancer endpoint after %s: %w", cfg.timeout, err)
			span.RecordError(err)
			return nil, err
		case <-ticker.C:
			ep, err = checkEndpoint(ctx, client, namespace, release)
			if err == nil {
				span.SetAttributes(attribute.String("address", ep.Address()))
				return ep, nil
			}
		}
	}
}

func checkEndpoint(ctx context.Context, client kubernetes.Interface, namespace, release string) (*LoadBalancerEndpoint, error) {
	selector := labels.SelectorFromSet(labels.Set{InstanceLabel: release}).String()
	services, err := client.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	for _, svc := range services.Items {
		if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
			continue
		}
		ingress := svc.Status.LoadBalancer.Ingress
		if len(ingress) == 0 {
			return nil, fmt.Errorf("load balancer for service %s not ready: no ingress entries", svc.Name)
		}
		return &LoadBalancerEndpoint{
			Service:  svc.Name,
			Hostname: ingress[0].Hostname,
			IP:       ingress[0].IP,
		}, nil
	}

	return nil, fmt.Errorf("no LoadBalancer service found in namespace %q for release %s", namespace, release)
}
