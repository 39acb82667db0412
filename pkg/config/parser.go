package config

import (
	"context"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ParseStackConfig reads a stack.yaml file from fs, applies defaults and
// validates the result.
func ParseStackConfig(ctx context.Context, fs afero.Fs, filePath string) (*StackConfig, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	_, span := tracer.Start(ctx, "config.ParseStackConfig")
	defer span.End()

	span.SetAttributes(attribute.String("config.file", filePath))

	data, err := afero.ReadFile(fs, filePath)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	cfg, err := ParseStackConfigBytes(data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	span.SetAttributes(
		attribute.String("config.cluster_name", cfg.ClusterName),
		attribute.String("config.region", cfg.Region),
	)

	return cfg, nil
}

// ParseStackConfigBytes decodes, defaults and validates a stack document
func ParseStackConfigBytes(data []byte) (*StackConfig, error) {
	var cfg StackConfig
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
