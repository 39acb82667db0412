package kubernetes

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
)

// InstanceLabel is the standard label charts put on every object of a release
const InstanceLabel = "app.kubernetes.io/instance"

// DeploymentReplicas is the replica state of one deployment
type DeploymentReplicas struct {
	Name    string
	Desired int32
	Ready   int32
	Updated int32
}

// Settled reports whether the deployment runs want up-to-date, ready replicas
func (d DeploymentReplicas) Settled(want int32) bool {
	return d.Desired == want && d.Ready >= want && d.Updated >= want
}

// ReleaseDeployments lists the deployments belonging to a release
func ReleaseDeployments(ctx context.Context, client kubernetes.Interface, namespace, release string) ([]DeploymentReplicas, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "kubernetes.ReleaseDeployments")
	defer span.End()

	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("release", release),
	)

	selector := labels.SelectorFromSet(labels.Set{InstanceLabel: release}).String()
	list, err := client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list deployments for release %s: %w", release, err)
	}

	deployments := make([]DeploymentReplicas, 0, len(list.Items))
	for i := range list.Items {
		deployments = append(deployments, replicasOf(&list.Items[i]))
	}

	span.SetAttributes(attribute.Int("deployments", len(deployments)))
	return deployments, nil
}

func replicasOf(d *appsv1.Deployment) DeploymentReplicas {
	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	return DeploymentReplicas{
		Name:    d.Name,
		Desired: desired,
		Ready:   d.Status.ReadyReplicas,
		Updated: d.Status.UpdatedReplicas,
	}
}

// WaitForReplicas polls until every deployment of the release has settled at
// want replicas. A release with no deployments never settles.
func WaitForReplicas(ctx context.Context, client kubernetes.Interface, namespace, release string, want int32, interval, timeout time.Duration) error {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "kubernetes.WaitForReplicas")
	defer span.End()

	span.SetAttributes(
		attribute.String("release", release),
		attribute.Int("replicas", int(want)),
		attribute.String("timeout", timeout.String()),
	)

	status.Send(ctx, status.NewUpdate(status.LevelProgress, "Waiting for controller replicas").
		WithResource("deployment").
		WithAction("waiting").
		WithMetadata("release", release).
		WithMetadata("replicas", want))

	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		deployments, err := ReleaseDeployments(ctx, client, namespace, release)
		if err != nil {
			// API hiccups are retried until the timeout
			return false, nil
		}
		if len(deployments) == 0 {
			return false, nil
		}
		for _, d := range deployments {
			if !d.Settled(want) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		err = fmt.Errorf("timeout waiting for release %s to run %d replicas: %w", release, want, err)
		span.RecordError(err)
		return err
	}

	status.Send(ctx, status.NewUpdate(status.LevelSuccess, "Controller replicas ready").
		WithResource("deployment").
		WithAction("ready").
		WithMetadata("release", release))

	return nil
}
