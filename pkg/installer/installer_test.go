package installer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/cfn"

	"github.com/nebari-dev/eks-ingress-stack/pkg/helm"
	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
)

type fakeAccess struct {
	err      error
	clusters []string
}

func (f *fakeAccess) Kubeconfig(ctx context.Context, clusterName string) ([]byte, error) {
	f.clusters = append(f.clusters, clusterName)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("apiVersion: v1\nkind: Config\n"), nil
}

type fakeReleaser struct {
	applied     []helm.ChartRelease
	uninstalled []string
	applyErr    error
}

func (f *fakeReleaser) Apply(ctx context.Context, kubeconfig []byte, rel helm.ChartRelease) (*helm.ReleaseInfo, error) {
	f.applied = append(f.applied, rel)
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return &helm.ReleaseInfo{
		Name:      rel.Name,
		Namespace: rel.Namespace,
		Revision:  len(f.applied),
		Status:    "deployed",
		Upgraded:  len(f.applied) > 1,
	}, nil
}

func (f *fakeReleaser) Uninstall(ctx context.Context, kubeconfig []byte, namespace, name string, timeout time.Duration) error {
	f.uninstalled = append(f.uninstalled, namespace+"/"+name)
	return nil
}

func chartEvent(requestType cfn.RequestType, resourceType string) cfn.Event {
	return cfn.Event{
		RequestType:  requestType,
		ResourceType: resourceType,
		ResourceProperties: map[string]interface{}{
			"Repository":  "https://helm.nginx.com/stable",
			"Chart":       "nginx-ingress",
			"Release":     "nginx-ingress-controller",
			"ClusterName": "ckd-eks-cluster",
			"Values":      `{"controller":{"replicaCount":2}}`,
		},
	}
}

func TestHandleUpdateAppliesRelease(t *testing.T) {
	access := &fakeAccess{}
	releaser := &fakeReleaser{}
	handler := NewHandler(access, releaser, Options{Timeout: 5 * time.Minute, Wait: true})

	resp, err := handler.Handle(context.Background(), chartEvent(cfn.RequestUpdate, lifecycle.ResourceTypeHelmChart))
	if err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}

	if len(access.clusters) != 1 || access.clusters[0] != "ckd-eks-cluster" {
		t.Errorf("cluster access requests = %v", access.clusters)
	}
	if len(releaser.applied) != 1 {
		t.Fatalf("Apply called %d times, want 1", len(releaser.applied))
	}

	rel := releaser.applied[0]
	if rel.Repository != "https://helm.nginx.com/stable" || rel.Chart != "nginx-ingress" || rel.Name != "nginx-ingress-controller" {
		t.Errorf("release = %+v", rel)
	}
	if rel.Namespace != "default" {
		t.Errorf("Namespace = %q, want default", rel.Namespace)
	}
	if !rel.Wait || rel.Timeout != 5*time.Minute {
		t.Errorf("Wait/Timeout = %v/%v", rel.Wait, rel.Timeout)
	}
	controller, ok := rel.Values["controller"].(map[string]interface{})
	if !ok {
		t.Fatalf("values = %v, want nested controller map", rel.Values)
	}
	if controller["replicaCount"] != float64(2) {
		t.Errorf("replicaCount = %v (%T)", controller["replicaCount"], controller["replicaCount"])
	}

	if resp.PhysicalResourceID != "ckd-eks-cluster/default/nginx-ingress-controller" {
		t.Errorf("PhysicalResourceID = %q", resp.PhysicalResourceID)
	}
	if resp.Data["Revision"] != "1" || resp.Data["Status"] != "deployed" || resp.Data["Release"] != "nginx-ingress-controller" {
		t.Errorf("Data = %v", resp.Data)
	}
}

func TestHandleCDKResourceType(t *testing.T) {
	releaser := &fakeReleaser{}
	handler := NewHandler(&fakeAccess{}, releaser, Options{})

	if _, err := handler.Handle(context.Background(), chartEvent(cfn.RequestCreate, lifecycle.ResourceTypeCDKHelmChart)); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if len(releaser.applied) != 1 {
		t.Errorf("Apply called %d times, want 1", len(releaser.applied))
	}
}

func TestHandlePhysicalID(t *testing.T) {
	tests := []struct {
		name        string
		requestType cfn.RequestType
		eventID     string
		want        string
	}{
		{name: "create derives id", requestType: cfn.RequestCreate, eventID: "", want: "ckd-eks-cluster/default/nginx-ingress-controller"},
		{name: "update keeps existing id", requestType: cfn.RequestUpdate, eventID: "legacy-id", want: "legacy-id"},
		{name: "update without id derives one", requestType: cfn.RequestUpdate, eventID: "", want: "ckd-eks-cluster/default/nginx-ingress-controller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			releaser := &fakeReleaser{}
			event := chartEvent(tt.requestType, lifecycle.ResourceTypeCDKHelmChart)
			event.PhysicalResourceID = tt.eventID

			resp, err := NewHandler(&fakeAccess{}, releaser, Options{}).Handle(context.Background(), event)
			if err != nil {
				t.Fatalf("Handle() unexpected error: %v", err)
			}
			if resp.PhysicalResourceID != tt.want {
				t.Errorf("PhysicalResourceID = %q, want %q", resp.PhysicalResourceID, tt.want)
			}
			if len(releaser.applied) != 1 {
				t.Errorf("Apply called %d times, want 1", len(releaser.applied))
			}
		})
	}
}

func TestHandleUnknownResourceType(t *testing.T) {
	access := &fakeAccess{}
	releaser := &fakeReleaser{}

	_, err := NewHandler(access, releaser, Options{}).Handle(context.Background(), chartEvent(cfn.RequestCreate, "Custom::AWSCDK-EKS-KubernetesPatch"))

	var invalid *lifecycle.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Handle() error = %v, want InvalidRequestError", err)
	}
	if invalid.Field != "ResourceType" {
		t.Errorf("Field = %q", invalid.Field)
	}
	if len(access.clusters) != 0 || len(releaser.applied) != 0 {
		t.Error("unknown resource type should not reach the cluster")
	}
}

func TestHandleInvalidRequestType(t *testing.T) {
	releaser := &fakeReleaser{}

	_, err := NewHandler(&fakeAccess{}, releaser, Options{}).Handle(context.Background(), chartEvent("Patch", lifecycle.ResourceTypeHelmChart))

	var invalid *lifecycle.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Handle() error = %v, want InvalidRequestError", err)
	}
	if len(releaser.applied) != 0 {
		t.Error("invalid request type should not apply a release")
	}
}

func TestHandleDeleteUninstalls(t *testing.T) {
	releaser := &fakeReleaser{}
	event := chartEvent(cfn.RequestDelete, lifecycle.ResourceTypeHelmChart)
	event.PhysicalResourceID = "existing-id"

	resp, err := NewHandler(&fakeAccess{}, releaser, Options{}).Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if resp.PhysicalResourceID != "existing-id" || resp.Data != nil {
		t.Errorf("response = %+v", resp)
	}
	if len(releaser.uninstalled) != 1 || releaser.uninstalled[0] != "default/nginx-ingress-controller" {
		t.Errorf("uninstalled = %v", releaser.uninstalled)
	}
	if len(releaser.applied) != 0 {
		t.Error("delete should not apply a release")
	}
}

func TestHandleInvalidValues(t *testing.T) {
	access := &fakeAccess{}
	event := chartEvent(cfn.RequestCreate, lifecycle.ResourceTypeHelmChart)
	event.ResourceProperties["Values"] = "{controller: ["

	_, err := NewHandler(access, &fakeReleaser{}, Options{}).Handle(context.Background(), event)

	var invalid *lifecycle.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Handle() error = %v, want InvalidRequestError", err)
	}
	if len(access.clusters) != 0 {
		t.Error("invalid values should be rejected before reaching the cluster")
	}
}

func TestHandlePropagatesErrors(t *testing.T) {
	accessErr := errors.New("cluster ckd-eks-cluster is not active")
	_, err := NewHandler(&fakeAccess{err: accessErr}, &fakeReleaser{}, Options{}).
		Handle(context.Background(), chartEvent(cfn.RequestUpdate, lifecycle.ResourceTypeHelmChart))
	if !errors.Is(err, accessErr) {
		t.Errorf("Handle() error = %v, want cluster access error", err)
	}

	applyErr := errors.New("failed to locate chart")
	_, err = NewHandler(&fakeAccess{}, &fakeReleaser{applyErr: applyErr}, Options{}).
		Handle(context.Background(), chartEvent(cfn.RequestUpdate, lifecycle.ResourceTypeHelmChart))
	if !errors.Is(err, applyErr) {
		t.Errorf("Handle() error = %v, want apply error", err)
	}
}

func TestParseValues(t *testing.T) {
	values, err := parseValues("")
	if err != nil || len(values) != 0 {
		t.Errorf("parseValues(\"\") = %v, %v", values, err)
	}

	values, err = parseValues(`{"controller": {"replicaCount": 1}}`)
	if err != nil {
		t.Fatalf("parseValues() error: %v", err)
	}
	if _, ok := values["controller"]; !ok {
		t.Errorf("values = %v", values)
	}
}
