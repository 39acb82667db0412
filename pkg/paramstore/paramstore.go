// Package paramstore reads and writes the environment configuration entry
// held in AWS Systems Manager Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
)

// Store is the read side of the configuration store used by the handlers
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// SSMClientAPI defines the SSM operations used by this package
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

var _ SSMClientAPI = (*ssm.Client)(nil)

// SSMStore is a Store backed by SSM Parameter Store
type SSMStore struct {
	client SSMClientAPI
}

// NewSSMStore wraps an SSM client
func NewSSMStore(client SSMClientAPI) *SSMStore {
	return &SSMStore{client: client}
}

// Get returns the value of the named parameter. A missing parameter is
// reported as *lifecycle.NotFoundError.
func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "paramstore.Get")
	defer span.End()

	span.SetAttributes(attribute.String("parameter.name", name))

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		span.RecordError(err)
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", &lifecycle.NotFoundError{Name: name, Err: err}
		}
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		err := &lifecycle.NotFoundError{Name: name}
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(attribute.Int64("parameter.version", out.Parameter.Version))

	return aws.ToString(out.Parameter.Value), nil
}

// Put creates or overwrites the named parameter as a plain String
func (s *SSMStore) Put(ctx context.Context, name, value, description string) (int64, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "paramstore.Put")
	defer span.End()

	span.SetAttributes(attribute.String("parameter.name", name))

	input := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	}
	if description != "" {
		input.Description = aws.String(description)
	}

	out, err := s.client.PutParameter(ctx, input)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to put parameter %s: %w", name, err)
	}

	span.SetAttributes(attribute.Int64("parameter.version", out.Version))

	return out.Version, nil
}
