package cluster

import (
	"context"
	"encoding/base64"
	"fmt"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const (
	tokenPrefix = "k8s-aws-v1."

	// clusterIDHeader binds the signed request to one cluster
	clusterIDHeader = "x-k8s-aws-id"

	presignExpirySeconds = "60"
)

// PresignerAPI defines the STS presign operation used to mint tokens
type PresignerAPI interface {
	PresignGetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var _ PresignerAPI = (*sts.PresignClient)(nil)

// Token returns an EKS bearer token: a presigned GetCallerIdentity URL that
// the cluster's authenticator replays against STS.
func Token(ctx context.Context, presigner PresignerAPI, clusterName string) (string, error) {
	req, err := presigner.PresignGetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}, withClusterID(clusterName))
	if err != nil {
		return "", fmt.Errorf("failed to presign caller identity for cluster %s: %w", clusterName, err)
	}
	if req == nil || req.URL == "" {
		return "", fmt.Errorf("presigned caller identity request for cluster %s is empty", clusterName)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(req.URL)), nil
}

func withClusterID(clusterName string) func(*sts.PresignOptions) {
	return func(po *sts.PresignOptions) {
		po.ClientOptions = append(po.ClientOptions, func(o *sts.Options) {
			o.APIOptions = append(o.APIOptions,
				smithyhttp.AddHeaderValue(clusterIDHeader, clusterName),
				smithyhttp.AddHeaderValue("X-Amz-Expires", presignExpirySeconds),
			)
		})
	}
}
