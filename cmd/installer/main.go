// Command installer is the chart installer function. It serves
// Custom::HelmChart events by installing, upgrading or uninstalling a Helm
// release on an EKS cluster.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/nebari-dev/eks-ingress-stack/pkg/awsclient"
	"github.com/nebari-dev/eks-ingress-stack/pkg/cluster"
	"github.com/nebari-dev/eks-ingress-stack/pkg/config"
	"github.com/nebari-dev/eks-ingress-stack/pkg/helm"
	"github.com/nebari-dev/eks-ingress-stack/pkg/installer"
	"github.com/nebari-dev/eks-ingress-stack/pkg/lambdarun"
)

func main() {
	slog.SetDefault(lambdarun.NewLogger("installer"))

	env, err := config.LoadLambdaEnv(os.Getenv)
	if err != nil {
		slog.Error("Invalid function environment", "error", err)
		os.Exit(1)
	}

	settings := helm.NewSettings(env.HelmWorkdir)
	if err := helm.PrepareWorkdir(afero.NewOsFs(), settings); err != nil {
		slog.Error("Failed to prepare Helm workdir", "error", err, "workdir", env.HelmWorkdir)
		os.Exit(1)
	}

	clients, err := awsclient.NewClients(context.Background(), "")
	if err != nil {
		slog.Error("Failed to create AWS clients", "error", err)
		os.Exit(1)
	}

	handler := installer.NewHandler(
		cluster.NewAccess(clients.EKSClient, clients.Presigner()),
		helm.NewReleaser(settings),
		installer.Options{Timeout: env.HelmTimeout, Wait: true},
	)
	lambdarun.Start("installer", handler.Handle)
}
