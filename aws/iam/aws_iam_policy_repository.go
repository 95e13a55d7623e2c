package iam

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	awspolicy "github.com/n4ch04/aws-policy"
)

// IamClient is the subset of the IAM API used to resolve managed policy
// documents.
type IamClient interface {
	GetPolicy(ctx context.Context, params *iam.GetPolicyInput, optFns ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
	GetPolicyVersion(ctx context.Context, params *iam.GetPolicyVersionInput, optFns ...func(*iam.Options)) (*iam.GetPolicyVersionOutput, error)
}

var _ IamClient = (*iam.Client)(nil)

type AwsIamRepository struct {
	client IamClient
}

func NewAwsIamRepository(client IamClient) *AwsIamRepository {
	return &AwsIamRepository{client: client}
}

// GetPolicyDocument fetches the document of the policy's current default
// version and returns it as JSON text.
func (repo *AwsIamRepository) GetPolicyDocument(ctx context.Context, policyArn string) (string, error) {
	policy, err := repo.client.GetPolicy(ctx, &iam.GetPolicyInput{
		PolicyArn: &policyArn,
	})
	if err != nil {
		return "", fmt.Errorf("get policy %q: %w", policyArn, err)
	}

	versionResp, err := repo.client.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
		PolicyArn: &policyArn,
		VersionId: policy.Policy.DefaultVersionId,
	})
	if err != nil {
		return "", fmt.Errorf("get policy version for %q: %w", policyArn, err)
	}

	document, err := parsePolicyDocument(versionResp.PolicyVersion.Document, policyArn)
	if err != nil {
		return "", err
	}

	return document, nil
}

// parsePolicyDocument URL-unescapes the document as returned by IAM and
// validates that it is a well-formed policy before it is embedded in a record.
func parsePolicyDocument(policyDoc *string, policyArn string) (string, error) {
	if policyDoc == nil {
		return "", fmt.Errorf("policy document is nil for %q", policyArn)
	}

	policyDocument, err := url.QueryUnescape(*policyDoc)
	if err != nil {
		return "", fmt.Errorf("query unescape policy document for %q: %w", policyArn, err)
	}

	var policy awspolicy.Policy

	err = policy.UnmarshalJSON([]byte(policyDocument))
	if err != nil {
		return "", fmt.Errorf("unmarshal policy document for %q: %w", policyArn, err)
	}

	return policyDocument, nil
}
