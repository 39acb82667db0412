// Package kubernetes reads workload state from the cluster the chart is
// released to.
package kubernetes

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	userAgent      = "eks-ingress-stack"
	requestTimeout = 30 * time.Second
)

// NewClusterClient builds a clientset for the kubeconfig minted from the
// cluster's EKS token. Every request the status checks send is capped at
// requestTimeout, so an unreachable API endpoint fails the poll instead of
// hanging it.
func NewClusterClient(ctx context.Context, kubeconfig []byte) (kubernetes.Interface, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	_, span := tracer.Start(ctx, "kubernetes.NewClusterClient")
	defer span.End()

	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load cluster kubeconfig: %w", err)
	}
	restConfig.UserAgent = userAgent
	restConfig.Timeout = requestTimeout

	span.SetAttributes(attribute.String("api_server", restConfig.Host))

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create cluster client for %s: %w", restConfig.Host, err)
	}
	return client, nil
}
