// Package lifecycle holds the CloudFormation custom-resource plumbing shared
// by every handler in this repository: the request-type enum, property
// accessors and the response shape returned to the provider framework.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/cfn"
)

// RequestType is the closed set of lifecycle transitions a handler serves.
type RequestType string

const (
	// RequestCreate is sent the first time the resource appears in a stack
	RequestCreate RequestType = RequestType(cfn.RequestCreate)

	// RequestUpdate is sent when resource properties change
	RequestUpdate RequestType = RequestType(cfn.RequestUpdate)

	// RequestDelete is sent when the resource leaves the stack
	RequestDelete RequestType = RequestType(cfn.RequestDelete)
)

// ParseRequestType maps the tag carried by an event onto a RequestType.
// Matching ignores case; any other tag is an InvalidRequestError.
func ParseRequestType(tag cfn.RequestType) (RequestType, error) {
	switch strings.ToLower(string(tag)) {
	case "create":
		return RequestCreate, nil
	case "update":
		return RequestUpdate, nil
	case "delete":
		return RequestDelete, nil
	default:
		return "", &InvalidRequestError{
			Field:  "RequestType",
			Value:  string(tag),
			Reason: "invalid request type",
		}
	}
}

// Response is what a handler returns to the custom-resource provider.
// Data is omitted entirely for Delete.
type Response struct {
	PhysicalResourceID string            `json:"PhysicalResourceId"`
	Data               map[string]string `json:"Data,omitempty"`
}

// StringProperty returns a required, non-empty string property from the event.
func StringProperty(event cfn.Event, key string) (string, error) {
	value, ok, err := OptionalStringProperty(event, key)
	if err != nil {
		return "", err
	}
	if !ok || value == "" {
		return "", &InvalidRequestError{
			Field:  "ResourceProperties." + key,
			Reason: "required property is missing or empty",
		}
	}
	return value, nil
}

// OptionalStringProperty returns a string property and whether it was set.
// Properties arrive as JSON, so a non-string value is rejected rather than
// formatted.
func OptionalStringProperty(event cfn.Event, key string) (string, bool, error) {
	raw, ok := event.ResourceProperties[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", false, &InvalidRequestError{
			Field:  "ResourceProperties." + key,
			Value:  fmt.Sprintf("%v", raw),
			Reason: fmt.Sprintf("expected string, got %T", raw),
		}
	}
	return value, true, nil
}
