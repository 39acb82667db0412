// Package cluster produces short-lived kubeconfigs for EKS clusters so that
// the chart installer can reach the Kubernetes API without the aws CLI.
package cluster

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// EKSClientAPI defines the EKS operations used by this package
type EKSClientAPI interface {
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

var _ EKSClientAPI = (*eks.Client)(nil)

// Access builds kubeconfigs from EKS cluster metadata and an STS-signed token
type Access struct {
	eks       EKSClientAPI
	presigner PresignerAPI
}

// NewAccess returns an Access using the given clients
func NewAccess(eksClient EKSClientAPI, presigner PresignerAPI) *Access {
	return &Access{eks: eksClient, presigner: presigner}
}

// Endpoint is the connection data of an active cluster
type Endpoint struct {
	Name   string
	Server string
	CAData []byte
}

// Describe looks up an active cluster's API endpoint and CA bundle
func (a *Access) Describe(ctx context.Context, clusterName string) (*Endpoint, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cluster.Describe")
	defer span.End()

	span.SetAttributes(attribute.String("cluster_name", clusterName))

	out, err := a.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{
		Name: aws.String(clusterName),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to describe EKS cluster %s: %w", clusterName, err)
	}

	c := out.Cluster
	if c == nil {
		err := fmt.Errorf("cluster %s not returned by DescribeCluster", clusterName)
		span.RecordError(err)
		return nil, err
	}

	if c.Status != ekstypes.ClusterStatusActive {
		err := fmt.Errorf("cluster %s is not active (status: %s)", clusterName, c.Status)
		span.RecordError(err)
		return nil, err
	}

	endpoint := aws.ToString(c.Endpoint)
	if endpoint == "" {
		err := fmt.Errorf("cluster %s has no endpoint", clusterName)
		span.RecordError(err)
		return nil, err
	}

	var caEncoded string
	if c.CertificateAuthority != nil {
		caEncoded = aws.ToString(c.CertificateAuthority.Data)
	}
	if caEncoded == "" {
		err := fmt.Errorf("cluster %s has no certificate authority data", clusterName)
		span.RecordError(err)
		return nil, err
	}

	caData, err := base64.StdEncoding.DecodeString(caEncoded)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("cluster %s has invalid certificate authority data: %w", clusterName, err)
	}

	span.SetAttributes(attribute.String("cluster_endpoint", endpoint))

	return &Endpoint{Name: clusterName, Server: endpoint, CAData: caData}, nil
}

// Kubeconfig returns a serialized kubeconfig for clusterName that
// authenticates with a bearer token valid for about fifteen minutes.
func (a *Access) Kubeconfig(ctx context.Context, clusterName string) ([]byte, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "cluster.Kubeconfig")
	defer span.End()

	endpoint, err := a.Describe(ctx, clusterName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	token, err := Token(ctx, a.presigner, clusterName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	data, err := BuildKubeconfig(endpoint, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("kubeconfig_size_bytes", len(data)))

	return data, nil
}

// BuildKubeconfig serializes a single-context kubeconfig for endpoint
func BuildKubeconfig(endpoint *Endpoint, token string) ([]byte, error) {
	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[endpoint.Name] = &clientcmdapi.Cluster{
		Server:                   endpoint.Server,
		CertificateAuthorityData: endpoint.CAData,
	}
	cfg.AuthInfos[endpoint.Name] = &clientcmdapi.AuthInfo{
		Token: token,
	}
	cfg.Contexts[endpoint.Name] = &clientcmdapi.Context{
		Cluster:  endpoint.Name,
		AuthInfo: endpoint.Name,
	}
	cfg.CurrentContext = endpoint.Name

	data, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kubeconfig: %w", err)
	}
	return data, nil
}
