// Package replicas maps an environment name onto the ingress controller
// replica count and encodes it as the Helm values the chart expects.
package replicas

import (
	"encoding/json"
	"fmt"
)

const (
	// DefaultReplicas is used for every environment without a special case
	DefaultReplicas = 1

	// HighAvailabilityReplicas is used for staging and production
	HighAvailabilityReplicas = 2
)

// ForEnvironment returns the replica count for an environment name.
// Comparison is exact and case-sensitive.
func ForEnvironment(environment string) int {
	switch environment {
	case "staging", "production":
		return HighAvailabilityReplicas
	default:
		return DefaultReplicas
	}
}

// Controller is the controller section of the ingress chart values
type Controller struct {
	ReplicaCount int `json:"replicaCount"`
}

// Values is the subset of chart values this repository sets
type Values struct {
	Controller Controller `json:"controller"`
}

// NewValues builds chart values for a replica count
func NewValues(replicaCount int) Values {
	return Values{Controller: Controller{ReplicaCount: replicaCount}}
}

// ForEnvironmentValues resolves an environment name straight to chart values
func ForEnvironmentValues(environment string) Values {
	return NewValues(ForEnvironment(environment))
}

// Compact returns the values as compact JSON, the form placed in the
// installer's Values property.
func (v Values) Compact() (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal helm values: %w", err)
	}
	return string(data), nil
}

// Spaced returns the values with ", " and ": " separators. Consumers of the
// resolver's helm_values attribute compare the string byte for byte, so this
// layout is part of the interface.
func (v Values) Spaced() (string, error) {
	compact, err := v.Compact()
	if err != nil {
		return "", err
	}
	return spaceSeparators(compact), nil
}

// Parse decodes a values string in either layout
func Parse(data string) (Values, error) {
	var v Values
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return Values{}, fmt.Errorf("failed to parse helm values %q: %w", data, err)
	}
	return v, nil
}

// spaceSeparators inserts a space after every ',' and ':' that sits outside
// a string literal of compact JSON.
func spaceSeparators(compact string) string {
	out := make([]byte, 0, len(compact)+8)
	inString := false
	escaped := false
	for i := 0; i < len(compact); i++ {
		c := compact[i]
		out = append(out, c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == ':'):
			out = append(out, ' ')
		}
	}
	return string(out)
}
