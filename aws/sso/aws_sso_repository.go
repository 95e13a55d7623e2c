package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoTypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/model"
)

// SsoAdminClient is the subset of the SSO Admin API the collector needs. The
// embedded paginator client interfaces let the SDK paginators run against a
// fake in tests.
type SsoAdminClient interface {
	ssoadmin.ListPermissionSetsAPIClient
	ssoadmin.ListAccountsForProvisionedPermissionSetAPIClient
	ssoadmin.ListAccountAssignmentsAPIClient
	ssoadmin.ListManagedPoliciesInPermissionSetAPIClient
	ssoadmin.ListCustomerManagedPolicyReferencesInPermissionSetAPIClient
	DescribePermissionSet(ctx context.Context, params *ssoadmin.DescribePermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DescribePermissionSetOutput, error)
	GetInlinePolicyForPermissionSet(ctx context.Context, params *ssoadmin.GetInlinePolicyForPermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.GetInlinePolicyForPermissionSetOutput, error)
	GetPermissionsBoundaryForPermissionSet(ctx context.Context, params *ssoadmin.GetPermissionsBoundaryForPermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.GetPermissionsBoundaryForPermissionSetOutput, error)
}

var _ SsoAdminClient = (*ssoadmin.Client)(nil)

type AwsSsoAdminRepository struct {
	instanceArn string
	client      SsoAdminClient
}

func NewAwsSsoAdminRepository(instanceArn string, client SsoAdminClient) (*AwsSsoAdminRepository, error) {
	if instanceArn == "" {
		return nil, errors.New("SSO instance ARN is not set")
	}

	return &AwsSsoAdminRepository{
		instanceArn: instanceArn,
		client:      client,
	}, nil
}

func (repo *AwsSsoAdminRepository) ListPermissionSets(ctx context.Context) ([]string, error) {
	var result []string

	iterator := ssoadmin.NewListPermissionSetsPaginator(repo.client, &ssoadmin.ListPermissionSetsInput{
		InstanceArn: &repo.instanceArn,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list permission sets: %w", err)
		}

		result = append(result, page.PermissionSets...)
	}

	return result, nil
}

func (repo *AwsSsoAdminRepository) GetPermissionSetName(ctx context.Context, permissionSetArn string) (string, error) {
	permissionSet, err := repo.client.DescribePermissionSet(ctx, &ssoadmin.DescribePermissionSetInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
	})

	if err != nil {
		return "", fmt.Errorf("describe permission set: %w", err)
	}

	return aws.ToString(permissionSet.PermissionSet.Name), nil
}

func (repo *AwsSsoAdminRepository) ListProvisionedAccounts(ctx context.Context, permissionSetArn string) ([]string, error) {
	var result []string

	iterator := ssoadmin.NewListAccountsForProvisionedPermissionSetPaginator(repo.client, &ssoadmin.ListAccountsForProvisionedPermissionSetInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list accounts for provisioned permission set: %w", err)
		}

		result = append(result, page.AccountIds...)
	}

	return result, nil
}

// ListAccountAssignments returns every assignment of the permission set in the
// given account, accumulated across all pages.
func (repo *AwsSsoAdminRepository) ListAccountAssignments(ctx context.Context, permissionSetArn string, accountId string) ([]model.AccountAssignment, error) {
	var result []model.AccountAssignment

	iterator := ssoadmin.NewListAccountAssignmentsPaginator(repo.client, &ssoadmin.ListAccountAssignmentsInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
		AccountId:        &accountId,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list account assignments: %w", err)
		}

		for _, assignment := range page.AccountAssignments {
			result = append(result, model.AccountAssignment{
				PrincipalId:   aws.ToString(assignment.PrincipalId),
				PrincipalType: model.PrincipalType(assignment.PrincipalType),
				AccountId:     aws.ToString(assignment.AccountId),
			})
		}
	}

	return result, nil
}

func (repo *AwsSsoAdminRepository) ListAttachedManagedPolicies(ctx context.Context, permissionSetArn string) ([]string, error) {
	var result []string

	iterator := ssoadmin.NewListManagedPoliciesInPermissionSetPaginator(repo.client, &ssoadmin.ListManagedPoliciesInPermissionSetInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list managed policies in permission set: %w", err)
		}

		for _, policy := range page.AttachedManagedPolicies {
			result = append(result, aws.ToString(policy.Arn))
		}
	}

	return result, nil
}

func (repo *AwsSsoAdminRepository) GetInlinePolicy(ctx context.Context, permissionSetArn string) (string, error) {
	policy, err := repo.client.GetInlinePolicyForPermissionSet(ctx, &ssoadmin.GetInlinePolicyForPermissionSetInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
	})

	if err != nil {
		return "", fmt.Errorf("get inline policy for permission set: %w", err)
	}

	return aws.ToString(policy.InlinePolicy), nil
}

func (repo *AwsSsoAdminRepository) ListCustomerManagedPolicyReferences(ctx context.Context, permissionSetArn string) ([]model.CustomerManagedPolicyRef, error) {
	var result []model.CustomerManagedPolicyRef

	iterator := ssoadmin.NewListCustomerManagedPolicyReferencesInPermissionSetPaginator(repo.client, &ssoadmin.ListCustomerManagedPolicyReferencesInPermissionSetInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list customer managed policy references in permission set: %w", err)
		}

		for _, ref := range page.CustomerManagedPolicyReferences {
			result = append(result, model.CustomerManagedPolicyRef{
				Name: aws.ToString(ref.Name),
				Path: aws.ToString(ref.Path),
			})
		}
	}

	return result, nil
}

// GetPermissionsBoundary returns the boundary attached to the permission set,
// or an empty string when none is attached. Not-found is the expected answer
// for permission sets without a boundary, so only that error kind is
// suppressed.
func (repo *AwsSsoAdminRepository) GetPermissionsBoundary(ctx context.Context, permissionSetArn string) (string, error) {
	boundary, err := repo.client.GetPermissionsBoundaryForPermissionSet(ctx, &ssoadmin.GetPermissionsBoundaryForPermissionSetInput{
		InstanceArn:      &repo.instanceArn,
		PermissionSetArn: &permissionSetArn,
	})

	if err != nil {
		var notFound *ssoTypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}

		return "", fmt.Errorf("get permissions boundary for permission set: %w", err)
	}

	return formatPermissionsBoundary(boundary.PermissionsBoundary), nil
}

func formatPermissionsBoundary(boundary *ssoTypes.PermissionsBoundary) string {
	if boundary == nil {
		return ""
	}

	if boundary.ManagedPolicyArn != nil {
		return *boundary.ManagedPolicyArn
	}

	if ref := boundary.CustomerManagedPolicyReference; ref != nil {
		return aws.ToString(ref.Path) + aws.ToString(ref.Name)
	}

	return ""
}
