package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/nebari-dev/eks-ingress-stack/pkg/lifecycle"
)

// MockLambdaClient is a mock implementation of LambdaClientAPI for testing
type MockLambdaClient struct {
	InvokeFunc func(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
	calls      []*lambda.InvokeInput
}

func (m *MockLambdaClient) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	m.calls = append(m.calls, params)
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("InvokeFunc not implemented")
}

type fakeStore struct {
	values map[string]string
	calls  int
}

func (f *fakeStore) Get(ctx context.Context, name string) (string, error) {
	f.calls++
	value, ok := f.values[name]
	if !ok {
		return "", &lifecycle.NotFoundError{Name: name}
	}
	return value, nil
}

func nginxRequest(replicaCount int) InstallationRequest {
	return InstallationRequest{
		InstallerTarget: "CustomHelmLambda",
		Repository:      "https://helm.nginx.com/stable",
		Chart:           "nginx-ingress",
		Release:         "nginx-ingress-controller",
		ClusterName:     "ckd-eks-cluster",
		ReplicaCount:    replicaCount,
	}
}

func TestInstallationRequestPayload(t *testing.T) {
	payload, err := nginxRequest(2).Payload()
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}

	want := `{"RequestType":"Update","ResourceType":"Custom::HelmChart","ResourceProperties":{` +
		`"Repository":"https://helm.nginx.com/stable","Chart":"nginx-ingress","Release":"nginx-ingress-controller",` +
		`"ClusterName":"ckd-eks-cluster","Values":"{\"controller\":{\"replicaCount\":2}}"}}`
	if string(payload) != want {
		t.Errorf("Payload() =\n%s\nwant\n%s", payload, want)
	}
}

func TestInstallationRequestPayloadNamespace(t *testing.T) {
	tests := []struct {
		namespace string
		want      string
		wantProps int
	}{
		{namespace: "", want: "", wantProps: 5},
		{namespace: "default", want: "", wantProps: 5},
		{namespace: "ingress", want: "ingress", wantProps: 6},
	}

	for _, tt := range tests {
		t.Run(tt.namespace, func(t *testing.T) {
			req := nginxRequest(1)
			req.Namespace = tt.namespace

			payload, err := req.Payload()
			if err != nil {
				t.Fatalf("Payload() error: %v", err)
			}

			var sent struct {
				ResourceProperties map[string]string
			}
			if err := json.Unmarshal(payload, &sent); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			namespace, present := sent.ResourceProperties["Namespace"]
			if present != (tt.want != "") || namespace != tt.want {
				t.Errorf("Namespace = %q (present %v), want %q", namespace, present, tt.want)
			}
			if len(sent.ResourceProperties) != tt.wantProps {
				t.Errorf("ResourceProperties = %v", sent.ResourceProperties)
			}
		})
	}
}

func TestInstallationRequestValuesPayload(t *testing.T) {
	for _, count := range []int{1, 2} {
		got, err := nginxRequest(count).ValuesPayload()
		if err != nil {
			t.Fatalf("ValuesPayload() error: %v", err)
		}
		want := fmt.Sprintf(`{"controller":{"replicaCount":%d}}`, count)
		if got != want {
			t.Errorf("ValuesPayload() = %s, want %s", got, want)
		}
	}
}

func TestDispatch(t *testing.T) {
	installerResponse := []byte(`{"PhysicalResourceId":"ckd-eks-cluster/default/nginx-ingress-controller","Data":{"Revision":"2"}}`)
	client := &MockLambdaClient{
		InvokeFunc: func(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
			return &lambda.InvokeOutput{StatusCode: 200, Payload: installerResponse}, nil
		},
	}

	got, err := New(client).Dispatch(context.Background(), nginxRequest(1))
	if err != nil {
		t.Fatalf("Dispatch() unexpected error: %v", err)
	}
	if string(got) != string(installerResponse) {
		t.Errorf("Dispatch() = %s, want installer response unchanged", got)
	}

	if len(client.calls) != 1 {
		t.Fatalf("Invoke called %d times, want 1", len(client.calls))
	}
	call := client.calls[0]
	if aws.ToString(call.FunctionName) != "CustomHelmLambda" {
		t.Errorf("FunctionName = %q", aws.ToString(call.FunctionName))
	}
	if call.InvocationType != lambdatypes.InvocationTypeRequestResponse {
		t.Errorf("InvocationType = %q, want RequestResponse", call.InvocationType)
	}

	var sent struct {
		RequestType        string
		ResourceType       string
		ResourceProperties map[string]string
	}
	if err := json.Unmarshal(call.Payload, &sent); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if sent.RequestType != "Update" || sent.ResourceType != "Custom::HelmChart" {
		t.Errorf("payload header = %s / %s", sent.RequestType, sent.ResourceType)
	}
	if sent.ResourceProperties["Values"] != `{"controller":{"replicaCount":1}}` {
		t.Errorf("Values = %s", sent.ResourceProperties["Values"])
	}
}

func TestDispatchErrors(t *testing.T) {
	transportErr := errors.New("connection refused")

	tests := []struct {
		name      string
		output    *lambda.InvokeOutput
		err       error
		wantCause error
	}{
		{
			name:      "transport error",
			err:       transportErr,
			wantCause: transportErr,
		},
		{
			name: "function error",
			output: &lambda.InvokeOutput{
				StatusCode:    200,
				FunctionError: aws.String("Unhandled"),
				Payload:       []byte(`{"errorMessage":"unknown resource type"}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockLambdaClient{
				InvokeFunc: func(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
					return tt.output, tt.err
				},
			}

			got, err := New(client).Dispatch(context.Background(), nginxRequest(2))
			if got != nil {
				t.Errorf("Dispatch() returned payload alongside error: %s", got)
			}

			var dispatchErr *lifecycle.DispatchError
			if !errors.As(err, &dispatchErr) {
				t.Fatalf("Dispatch() error = %v, want DispatchError", err)
			}
			if dispatchErr.Target != "CustomHelmLambda" {
				t.Errorf("Target = %q", dispatchErr.Target)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("DispatchError does not wrap the original cause: %v", err)
			}
			if len(client.calls) != 1 {
				t.Errorf("Invoke called %d times, want exactly 1", len(client.calls))
			}
		})
	}
}

func TestDispatchWithoutInstaller(t *testing.T) {
	client := &MockLambdaClient{}
	req := nginxRequest(1)
	req.InstallerTarget = ""

	_, err := New(client).Dispatch(context.Background(), req)
	var invalid *lifecycle.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Dispatch() error = %v, want InvalidRequestError", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("Invoke called %d times, want 0", len(client.calls))
	}
}

func chartEvent(requestType cfn.RequestType, extra map[string]interface{}) cfn.Event {
	props := map[string]interface{}{
		"Repository":  "https://helm.nginx.com/stable",
		"Chart":       "nginx-ingress",
		"Release":     "nginx-ingress-controller",
		"ClusterName": "ckd-eks-cluster",
	}
	for k, v := range extra {
		props[k] = v
	}
	return cfn.Event{
		RequestType:        requestType,
		PhysicalResourceID: "X",
		ResourceProperties: props,
	}
}

func echoClient() *MockLambdaClient {
	return &MockLambdaClient{
		InvokeFunc: func(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
			return &lambda.InvokeOutput{StatusCode: 200, Payload: []byte(`{"ok":true}`)}, nil
		},
	}
}

func sentValues(t *testing.T, call *lambda.InvokeInput) string {
	t.Helper()
	var sent struct {
		ResourceProperties map[string]string
	}
	if err := json.Unmarshal(call.Payload, &sent); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	return sent.ResourceProperties["Values"]
}

func TestHandlerUsesResolvedHelmValues(t *testing.T) {
	client := echoClient()
	store := &fakeStore{}
	event := chartEvent(cfn.RequestCreate, map[string]interface{}{
		"helm_values": `{"controller": {"replicaCount": 2}}`,
	})

	got, err := NewHandler(New(client), store, "CustomHelmLambda").Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("Handle() = %s", got)
	}
	if store.calls != 0 {
		t.Errorf("store called %d times, want 0 when helm_values is provided", store.calls)
	}
	if v := sentValues(t, client.calls[0]); v != `{"controller":{"replicaCount":2}}` {
		t.Errorf("Values = %s", v)
	}
}

func TestHandlerResolvesOutOfBand(t *testing.T) {
	tests := []struct {
		environment string
		want        string
	}{
		{environment: "development", want: `{"controller":{"replicaCount":1}}`},
		{environment: "staging", want: `{"controller":{"replicaCount":2}}`},
		{environment: "production", want: `{"controller":{"replicaCount":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			client := echoClient()
			store := &fakeStore{values: map[string]string{"/platform/account/env": tt.environment}}
			event := chartEvent(cfn.RequestUpdate, map[string]interface{}{
				"ssm_parameter_name": "/platform/account/env",
				"InstallerFunction":  "OverrideInstaller",
			})

			if _, err := NewHandler(New(client), store, "CustomHelmLambda").Handle(context.Background(), event); err != nil {
				t.Fatalf("Handle() unexpected error: %v", err)
			}
			if store.calls != 1 {
				t.Errorf("store called %d times, want 1", store.calls)
			}
			if v := sentValues(t, client.calls[0]); v != tt.want {
				t.Errorf("Values = %s, want %s", v, tt.want)
			}
			if aws.ToString(client.calls[0].FunctionName) != "OverrideInstaller" {
				t.Errorf("FunctionName = %q, want property override", aws.ToString(client.calls[0].FunctionName))
			}
		})
	}
}

func TestHandlerDelete(t *testing.T) {
	client := &MockLambdaClient{}
	store := &fakeStore{}
	event := chartEvent(cfn.RequestDelete, map[string]interface{}{"ssm_parameter_name": "/platform/account/env"})

	got, err := NewHandler(New(client), store, "CustomHelmLambda").Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if string(got) != `{"PhysicalResourceId":"X"}` {
		t.Errorf("Handle() = %s", got)
	}
	if len(client.calls) != 0 || store.calls != 0 {
		t.Errorf("delete made external calls: invoke=%d store=%d", len(client.calls), store.calls)
	}
}

func TestHandlerInvalidRequestType(t *testing.T) {
	client := &MockLambdaClient{}
	event := chartEvent("Patch", nil)

	_, err := NewHandler(New(client), nil, "CustomHelmLambda").Handle(context.Background(), event)
	var invalid *lifecycle.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Handle() error = %v, want InvalidRequestError", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("Invoke called %d times, want 0", len(client.calls))
	}
}

func TestHandlerMalformedHelmValues(t *testing.T) {
	tests := []struct {
		name       string
		helmValues string
	}{
		{name: "truncated json", helmValues: "{"},
		{name: "empty object", helmValues: "{}"},
		{name: "no replica count", helmValues: `{"controller": {}}`},
		{name: "null document", helmValues: "null"},
		{name: "negative replica count", helmValues: `{"controller":{"replicaCount":-3}}`},
		{name: "zero replica count", helmValues: `{"controller":{"replicaCount":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := echoClient()
			event := chartEvent(cfn.RequestCreate, map[string]interface{}{"helm_values": tt.helmValues})

			_, err := NewHandler(New(client), nil, "CustomHelmLambda").Handle(context.Background(), event)
			var invalid *lifecycle.InvalidRequestError
			if !errors.As(err, &invalid) {
				t.Fatalf("Handle() error = %v, want InvalidRequestError", err)
			}
			if invalid.Field != "ResourceProperties.helm_values" {
				t.Errorf("Field = %q", invalid.Field)
			}
			if len(client.calls) != 0 {
				t.Errorf("Invoke called %d times, want 0", len(client.calls))
			}
		})
	}
}
