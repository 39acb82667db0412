package config

import (
	"fmt"
	"strings"
)

// Defaults for the ingress controller stack
const (
	DefaultRegion            = "us-east-1"
	DefaultInstallerFunction = "CustomHelmLambda"
	DefaultParameterName     = "/platform/account/env"
	DefaultChartRepository   = "https://helm.nginx.com/stable"
	DefaultChartName         = "nginx-ingress"
	DefaultReleaseName       = "nginx-ingress-controller"
	DefaultNamespace         = "default"
)

// StackConfig represents the parsed stack.yaml structure
type StackConfig struct {
	Region            string          `yaml:"region,omitempty"`
	ClusterName       string          `yaml:"cluster_name"`
	InstallerFunction string          `yaml:"installer_function,omitempty"`
	Parameter         ParameterConfig `yaml:"parameter,omitempty"`
	Chart             ChartConfig     `yaml:"chart,omitempty"`
}

// ParameterConfig names the environment parameter in the configuration store.
// Value is only used by "param put".
type ParameterConfig struct {
	Name        string `yaml:"name,omitempty"`
	Value       string `yaml:"value,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// ChartConfig identifies the chart release the installer manages
type ChartConfig struct {
	Repository string `yaml:"repository,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Version    string `yaml:"version,omitempty"`
	Release    string `yaml:"release,omitempty"`
	Namespace  string `yaml:"namespace,omitempty"`
}

// ApplyDefaults fills every unset field except the cluster name
func (c *StackConfig) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.InstallerFunction == "" {
		c.InstallerFunction = DefaultInstallerFunction
	}
	if c.Parameter.Name == "" {
		c.Parameter.Name = DefaultParameterName
	}
	if c.Chart.Repository == "" {
		c.Chart.Repository = DefaultChartRepository
	}
	if c.Chart.Name == "" {
		c.Chart.Name = DefaultChartName
	}
	if c.Chart.Release == "" {
		c.Chart.Release = DefaultReleaseName
	}
	if c.Chart.Namespace == "" {
		c.Chart.Namespace = DefaultNamespace
	}
}

// Validate reports the first problem found in a defaulted config
func (c *StackConfig) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name field is required in config")
	}
	if strings.ContainsAny(c.Parameter.Name, " \t\n") {
		return fmt.Errorf("invalid parameter name %q: must not contain whitespace", c.Parameter.Name)
	}
	if c.Chart.Repository != "" && !strings.HasPrefix(c.Chart.Repository, "https://") &&
		!strings.HasPrefix(c.Chart.Repository, "http://") && !strings.HasPrefix(c.Chart.Repository, "oci://") {
		return fmt.Errorf("invalid chart repository %q: must be an http(s) or oci URL", c.Chart.Repository)
	}
	return nil
}
