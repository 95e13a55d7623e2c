package repo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type StsClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var _ StsClient = (*sts.Client)(nil)

// GetAWSConfig loads the SDK configuration for the given profile and region.
// Empty values fall back to the default credential chain and region.
func GetAWSConfig(ctx context.Context, profile string, region string) (aws.Config, error) {
	loadOptions := make([]func(*awsconfig.LoadOptions) error, 0)

	if profile != "" {
		loadOptions = append(loadOptions, awsconfig.WithSharedConfigProfile(profile))
	}

	if region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(region))
	}

	return awsconfig.LoadDefaultConfig(ctx, loadOptions...)
}

// GetAccountId resolves the account the current credentials belong to.
func GetAccountId(ctx context.Context, client StsClient) (string, error) {
	req, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}

	return *req.Account, nil
}
