// Package awsclient builds the AWS service clients used across the stack
// from a single configuration.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Clients holds all AWS service clients used by the handlers and the CLI
type Clients struct {
	SSMClient    *ssm.Client
	LambdaClient *lambda.Client
	EKSClient    *eks.Client
	STSClient    *sts.Client
	IAMClient    *iam.Client
	Config       aws.Config
	Region       string
}

// NewClients loads AWS configuration through the default credential chain
// and creates every service client. An empty region defers to AWS_REGION
// and the shared config files.
func NewClients(ctx context.Context, region string) (*Clients, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "awsclient.NewClients")
	defer span.End()

	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("aws.region", cfg.Region))

	return FromConfig(cfg), nil
}

// FromConfig creates every service client from an existing configuration
func FromConfig(cfg aws.Config) *Clients {
	return &Clients{
		SSMClient:    ssm.NewFromConfig(cfg),
		LambdaClient: lambda.NewFromConfig(cfg),
		EKSClient:    eks.NewFromConfig(cfg),
		STSClient:    sts.NewFromConfig(cfg),
		IAMClient:    iam.NewFromConfig(cfg),
		Config:       cfg,
		Region:       cfg.Region,
	}
}

// Presigner returns an STS presign client for minting cluster tokens
func (c *Clients) Presigner() *sts.PresignClient {
	return sts.NewPresignClient(c.STSClient)
}

// LoadConfig loads AWS configuration using the default credential chain:
// environment variables, shared config files, then the execution role when
// running on Lambda, ECS or EC2.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "awsclient.LoadConfig")
	defer span.End()

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		span.RecordError(err)
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	if cfg.Region == "" {
		err := fmt.Errorf("AWS region is required: set region in the stack file or AWS_REGION")
		span.RecordError(err)
		return aws.Config{}, err
	}

	return cfg, nil
}
