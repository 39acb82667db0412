// Command trigger is the deployment trigger function. It builds the chart
// installation request and invokes the installer function synchronously.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nebari-dev/eks-ingress-stack/pkg/awsclient"
	"github.com/nebari-dev/eks-ingress-stack/pkg/config"
	"github.com/nebari-dev/eks-ingress-stack/pkg/lambdarun"
	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/trigger"
)

func main() {
	slog.SetDefault(lambdarun.NewLogger("trigger"))

	env, err := config.LoadLambdaEnv(os.Getenv)
	if err != nil {
		slog.Error("Invalid function environment", "error", err)
		os.Exit(1)
	}

	clients, err := awsclient.NewClients(context.Background(), "")
	if err != nil {
		slog.Error("Failed to create AWS clients", "error", err)
		os.Exit(1)
	}

	handler := trigger.NewHandler(
		trigger.New(clients.LambdaClient),
		paramstore.NewSSMStore(clients.SSMClient),
		env.InstallerFunction,
	)
	lambdarun.Start("trigger", handler.Handle)
}
