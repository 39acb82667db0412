package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// STSClientAPI defines the STS operation used for identity checks
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IAMClientAPI defines the IAM operation used for permission checks
type IAMClientAPI interface {
	SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

var (
	_ STSClientAPI = (*sts.Client)(nil)
	_ IAMClientAPI = (*iam.Client)(nil)
)

// Operation names the CLI workflow whose permissions are checked
type Operation string

const (
	OperationParamPut Operation = "param-put"
	OperationResolve  Operation = "resolve"
	OperationDeploy   Operation = "deploy"
	OperationStatus   Operation = "status"
)

// CredentialValidationResult contains the results of credential validation
type CredentialValidationResult struct {
	AccountID          string
	Arn                string
	MissingPermissions []string
}

// RequiredPermissions lists the IAM actions an operation performs
func RequiredPermissions(op Operation) []string {
	perms := []string{"sts:GetCallerIdentity"}
	switch op {
	case OperationParamPut:
		perms = append(perms, "ssm:PutParameter", "ssm:GetParameter")
	case OperationResolve:
		perms = append(perms, "ssm:GetParameter")
	case OperationDeploy:
		perms = append(perms, "ssm:GetParameter", "lambda:InvokeFunction")
	case OperationStatus:
		perms = append(perms, "ssm:GetParameter", "eks:DescribeCluster")
	}
	return perms
}

// ValidateCredentials resolves the caller identity and simulates its policy
// against the permissions op requires. Missing permissions are reported in
// the result, not as an error.
func ValidateCredentials(ctx context.Context, stsClient STSClientAPI, iamClient IAMClientAPI, op Operation) (*CredentialValidationResult, error) {
	tracer := otel.Tracer("eks-ingress-stack")
	ctx, span := tracer.Start(ctx, "awsclient.ValidateCredentials")
	defer span.End()

	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	result := &CredentialValidationResult{
		AccountID: aws.ToString(identity.Account),
		Arn:       aws.ToString(identity.Arn),
	}

	span.SetAttributes(
		attribute.String("aws.account_id", result.AccountID),
		attribute.String("aws.arn", result.Arn),
	)

	required := RequiredPermissions(op)
	sim, err := iamClient.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: identity.Arn,
		ActionNames:     required,
		ResourceArns:    []string{"*"},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to simulate IAM policy: %w", err)
	}

	for _, eval := range sim.EvaluationResults {
		if eval.EvalDecision != iamtypes.PolicyEvaluationDecisionTypeAllowed {
			result.MissingPermissions = append(result.MissingPermissions, aws.ToString(eval.EvalActionName))
		}
	}

	span.SetAttributes(
		attribute.Int("permissions.checked", len(required)),
		attribute.Int("permissions.missing", len(result.MissingPermissions)),
	)

	return result, nil
}
