// Command resolver is the configuration resolver function. It reads the
// environment parameter named by the custom resource and returns the Helm
// values for that environment.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nebari-dev/eks-ingress-stack/pkg/awsclient"
	"github.com/nebari-dev/eks-ingress-stack/pkg/lambdarun"
	"github.com/nebari-dev/eks-ingress-stack/pkg/paramstore"
	"github.com/nebari-dev/eks-ingress-stack/pkg/resolver"
)

func main() {
	slog.SetDefault(lambdarun.NewLogger("resolver"))

	clients, err := awsclient.NewClients(context.Background(), "")
	if err != nil {
		slog.Error("Failed to create AWS clients", "error", err)
		os.Exit(1)
	}

	handler := resolver.NewHandler(paramstore.NewSSMStore(clients.SSMClient))
	lambdarun.Start("resolver", handler.Handle)
}
