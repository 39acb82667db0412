// Package helm wraps the Helm SDK operations the chart installer needs:
// building an action configuration from kubeconfig bytes, locating a chart
// in a repository and applying or removing a release.
package helm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/cli"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// KubeconfigGetter implements the Helm RESTClientGetter interface using a
// kubeconfig file path.
type KubeconfigGetter struct {
	path      string
	namespace string
}

func (k *KubeconfigGetter) ToRESTConfig() (*rest.Config, error) {
	return clientcmd.BuildConfigFromFlags("", k.path)
}

func (k *KubeconfigGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	config, err := k.ToRESTConfig()
	if err != nil {
		return nil, err
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, err
	}
	return memory.NewMemCacheClient(discoveryClient), nil
}

func (k *KubeconfigGetter) ToRESTMapper() (meta.RESTMapper, error) {
	discoveryClient, err := k.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(discoveryClient), nil
}

func (k *KubeconfigGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: k.path},
		&clientcmd.ConfigOverrides{Context: clientcmdapi.Context{Namespace: k.namespace}},
	)
}

// NewActionConfig creates a Helm action configuration for the kubeconfig at
// kubeconfigPath, scoped to namespace. Helm's debug output goes to slog.
func NewActionConfig(kubeconfigPath string, namespace string) (*action.Configuration, error) {
	actionConfig := new(action.Configuration)

	if err := actionConfig.Init(
		&KubeconfigGetter{path: kubeconfigPath, namespace: namespace},
		namespace,
		os.Getenv("HELM_DRIVER"), // defaults to "secret" if empty
		func(format string, v ...any) {
			slog.Debug("helm", "message", fmt.Sprintf(format, v...))
		},
	); err != nil {
		return nil, fmt.Errorf("failed to initialize Helm action config: %w", err)
	}

	return actionConfig, nil
}

// NewSettings returns Helm environment settings whose repository cache and
// config live under workdir. The Lambda filesystem is read-only outside /tmp,
// so the default locations under $HOME cannot be used there.
func NewSettings(workdir string) *cli.EnvSettings {
	settings := cli.New()
	if workdir == "" {
		return settings
	}
	settings.RepositoryCache = filepath.Join(workdir, "repository")
	settings.RepositoryConfig = filepath.Join(workdir, "repositories.yaml")
	settings.RegistryConfig = filepath.Join(workdir, "registry", "config.json")
	return settings
}

// WriteTempKubeconfig writes kubeconfig bytes to a temporary file and returns
// the file path, a cleanup function to remove the file, and any error.
func WriteTempKubeconfig(kubeconfigBytes []byte) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "kubeconfig-*.yaml")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp kubeconfig: %w", err)
	}

	tmpPath := filepath.Clean(tmpFile.Name())

	if _, err := tmpFile.Write(kubeconfigBytes); err != nil {
		_ = os.Remove(tmpPath)
		return "", nil, fmt.Errorf("failed to write temp kubeconfig: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", nil, fmt.Errorf("failed to close temp kubeconfig: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	return tmpPath, cleanup, nil
}

// PrepareWorkdir creates the repository cache and registry directories the
// settings from NewSettings point at. Helm does not create them on a fresh
// Lambda sandbox.
func PrepareWorkdir(appFs afero.Fs, settings *cli.EnvSettings) error {
	dirs := []string{
		settings.RepositoryCache,
		filepath.Dir(settings.RepositoryConfig),
		filepath.Dir(settings.RegistryConfig),
	}
	for _, dir := range dirs {
		if err := appFs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create Helm directory %s: %w", dir, err)
		}
	}
	return nil
}
