package lifecycle

import (
	"github.com/aws/aws-lambda-go/cfn"
)

const (
	// ResourceTypeHelmChart is the resource type the trigger sends
	ResourceTypeHelmChart = "Custom::HelmChart"

	// ResourceTypeCDKHelmChart is the resource type emitted by the CDK EKS
	// construct library for its own chart resources
	ResourceTypeCDKHelmChart = "Custom::AWSCDK-EKS-HelmChart"

	// DefaultNamespace is used when a chart request does not name one
	DefaultNamespace = "default"
)

// HelmChartProperties is the property bag of a chart resource. Values holds
// the chart values as a JSON string, not as a nested object.
type HelmChartProperties struct {
	Repository  string `json:"Repository"`
	Chart       string `json:"Chart"`
	Release     string `json:"Release"`
	ClusterName string `json:"ClusterName"`
	Namespace   string `json:"Namespace,omitempty"`
	Version     string `json:"Version,omitempty"`
	Values      string `json:"Values"`
}

// ParseHelmChartProperties reads a chart property bag from an event.
// Chart, Release and ClusterName are required.
func ParseHelmChartProperties(event cfn.Event) (HelmChartProperties, error) {
	var props HelmChartProperties
	var err error

	if props.Chart, err = StringProperty(event, "Chart"); err != nil {
		return HelmChartProperties{}, err
	}
	if props.Release, err = StringProperty(event, "Release"); err != nil {
		return HelmChartProperties{}, err
	}
	if props.ClusterName, err = StringProperty(event, "ClusterName"); err != nil {
		return HelmChartProperties{}, err
	}

	optional := []struct {
		key    string
		target *string
	}{
		{key: "Repository", target: &props.Repository},
		{key: "Namespace", target: &props.Namespace},
		{key: "Version", target: &props.Version},
		{key: "Values", target: &props.Values},
	}
	for _, o := range optional {
		if *o.target, _, err = OptionalStringProperty(event, o.key); err != nil {
			return HelmChartProperties{}, err
		}
	}

	if props.Namespace == "" {
		props.Namespace = DefaultNamespace
	}

	return props, nil
}

// PhysicalID identifies a chart release across lifecycle events
func (p HelmChartProperties) PhysicalID() string {
	return p.ClusterName + "/" + p.Namespace + "/" + p.Release
}
