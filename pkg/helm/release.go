package helm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"

	"github.com/nebari-dev/eks-ingress-stack/pkg/status"
)

// ChartRelease is one desired release of a chart
type ChartRelease struct {
	Repository string
	Chart      string
	Version    string
	Name       string
	Namespace  string
	Values     map[string]any
	Wait       bool
	Timeout    time.Duration
}

// ReleaseInfo summarizes a release after an operation
type ReleaseInfo struct {
	Name      string
	Namespace string
	Revision  int
	Status    string
	Upgraded  bool
}

// Releaser applies and removes chart releases on a cluster
type Releaser struct {
	settings *cli.EnvSettings
}

// NewReleaser returns a Releaser using settings for chart lookups
func NewReleaser(settings *cli.EnvSettings) *Releaser {
	return &Releaser{settings: settings}
}

// Apply installs rel if the release does not exist yet and upgrades it
// otherwise.
func (r *Releaser) Apply(ctx context.Context, kubeconfig []byte, rel ChartRelease) (*ReleaseInfo, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "helm.Apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("chart", rel.Chart),
		attribute.String("repository", rel.Repository),
		attribute.String("release_name", rel.Name),
		attribute.String("namespace", rel.Namespace),
	)

	path, cleanup, err := WriteTempKubeconfig(kubeconfig)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer cleanup()

	actionConfig, err := NewActionConfig(path, rel.Namespace)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	info, err := apply(ctx, actionConfig, func(opts action.ChartPathOptions) (*chart.Chart, error) {
		return r.loadChart(opts, rel)
	}, rel)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("release_version", info.Revision),
		attribute.String("release_status", info.Status),
	)
	return info, nil
}

// Uninstall removes the named release. A release that does not exist is not
// an error.
func (r *Releaser) Uninstall(ctx context.Context, kubeconfig []byte, namespace, name string, timeout time.Duration) error {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "helm.Uninstall")
	defer span.End()

	span.SetAttributes(
		attribute.String("release_name", name),
		attribute.String("namespace", namespace),
	)

	path, cleanup, err := WriteTempKubeconfig(kubeconfig)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer cleanup()

	actionConfig, err := NewActionConfig(path, namespace)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := uninstall(ctx, actionConfig, name, timeout); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

type chartLoader func(action.ChartPathOptions) (*chart.Chart, error)

func (r *Releaser) loadChart(opts action.ChartPathOptions, rel ChartRelease) (*chart.Chart, error) {
	opts.RepoURL = rel.Repository
	opts.Version = rel.Version

	chartPath, err := opts.LocateChart(rel.Chart, r.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to locate chart %s: %w", rel.Chart, err)
	}

	loaded, err := loader.Load(chartPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", rel.Chart, err)
	}
	return loaded, nil
}

func apply(ctx context.Context, actionConfig *action.Configuration, load chartLoader, rel ChartRelease) (*ReleaseInfo, error) {
	history := action.NewHistory(actionConfig)
	history.Max = 1
	_, err := history.Run(rel.Name)
	switch {
	case err == nil:
		return upgrade(ctx, actionConfig, load, rel)
	case errors.Is(err, driver.ErrReleaseNotFound):
		return install(ctx, actionConfig, load, rel)
	default:
		return nil, fmt.Errorf("failed to read history of release %s: %w", rel.Name, err)
	}
}

func install(ctx context.Context, actionConfig *action.Configuration, load chartLoader, rel ChartRelease) (*ReleaseInfo, error) {
	client := action.NewInstall(actionConfig)
	client.Namespace = rel.Namespace
	client.ReleaseName = rel.Name
	client.CreateNamespace = true
	client.Wait = rel.Wait
	client.Timeout = rel.Timeout

	status.Send(ctx, status.NewUpdate(status.LevelProgress, "Installing Helm chart").
		WithResource("helm-release").
		WithAction("installing").
		WithMetadata("release", rel.Name).
		WithMetadata("chart", rel.Chart))

	ch, err := load(client.ChartPathOptions)
	if err != nil {
		return nil, err
	}

	installed, err := client.RunWithContext(ctx, ch, rel.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to install release %s: %w", rel.Name, err)
	}

	info := releaseInfo(installed, false)
	status.Send(ctx, status.NewUpdate(status.LevelSuccess, "Helm chart installed").
		WithResource("helm-release").
		WithAction("installed").
		WithMetadata("release", info.Name).
		WithMetadata("revision", info.Revision))
	return info, nil
}

func upgrade(ctx context.Context, actionConfig *action.Configuration, load chartLoader, rel ChartRelease) (*ReleaseInfo, error) {
	client := action.NewUpgrade(actionConfig)
	client.Namespace = rel.Namespace
	client.Wait = rel.Wait
	client.Timeout = rel.Timeout

	status.Send(ctx, status.NewUpdate(status.LevelProgress, "Upgrading Helm chart").
		WithResource("helm-release").
		WithAction("upgrading").
		WithMetadata("release", rel.Name).
		WithMetadata("chart", rel.Chart))

	ch, err := load(client.ChartPathOptions)
	if err != nil {
		return nil, err
	}

	upgraded, err := client.RunWithContext(ctx, rel.Name, ch, rel.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade release %s: %w", rel.Name, err)
	}

	info := releaseInfo(upgraded, true)
	status.Send(ctx, status.NewUpdate(status.LevelSuccess, "Helm chart upgraded").
		WithResource("helm-release").
		WithAction("upgraded").
		WithMetadata("release", info.Name).
		WithMetadata("revision", info.Revision))
	return info, nil
}

func uninstall(ctx context.Context, actionConfig *action.Configuration, name string, timeout time.Duration) error {
	client := action.NewUninstall(actionConfig)
	client.Timeout = timeout
	client.IgnoreNotFound = true

	resp, err := client.Run(name)
	if err != nil {
		return fmt.Errorf("failed to uninstall release %s: %w", name, err)
	}

	if resp == nil || resp.Release == nil {
		status.Send(ctx, status.NewUpdate(status.LevelWarning, "Release not found, nothing to uninstall").
			WithResource("helm-release").
			WithMetadata("release", name))
		return nil
	}

	status.Send(ctx, status.NewUpdate(status.LevelSuccess, "Helm chart uninstalled").
		WithResource("helm-release").
		WithAction("uninstalled").
		WithMetadata("release", name))
	return nil
}

func releaseInfo(rel *release.Release, upgraded bool) *ReleaseInfo {
	info := &ReleaseInfo{
		Name:      rel.Name,
		Namespace: rel.Namespace,
		Revision:  rel.Version,
		Upgraded:  upgraded,
	}
	if rel.Info != nil {
		info.Status = rel.Info.Status.String()
	}
	return info
}
