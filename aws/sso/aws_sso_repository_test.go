package sso

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssoTypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/aws/smithy-go/ptr"
	"github.com/stretchr/testify/require"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/model"
)

const testInstanceArn = "arn:aws:sso:::instance/ssoins-test"

// fakeSsoAdminClient serves canned pages through the real SDK paginators.
// Tokens are page indexes, handed back as NextToken while pages remain.
type fakeSsoAdminClient struct {
	permissionSetPages [][]string
	accountPages       [][]string
	assignmentPages    [][]ssoTypes.AccountAssignment
	managedPolicyPages [][]ssoTypes.AttachedManagedPolicy
	customerRefPages   [][]ssoTypes.CustomerManagedPolicyReference

	permissionSetName string
	inlinePolicy      string

	boundary    *ssoTypes.PermissionsBoundary
	boundaryErr error
}

func pageIndex(token *string) int {
	if token == nil {
		return 0
	}

	index, _ := strconv.Atoi(*token)

	return index
}

func nextToken(index int, totalPages int) *string {
	if index+1 >= totalPages {
		return nil
	}

	return ptr.String(strconv.Itoa(index + 1))
}

func (f *fakeSsoAdminClient) ListPermissionSets(_ context.Context, params *ssoadmin.ListPermissionSetsInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsOutput, error) {
	index := pageIndex(params.NextToken)

	output := &ssoadmin.ListPermissionSetsOutput{NextToken: nextToken(index, len(f.permissionSetPages))}
	if index < len(f.permissionSetPages) {
		output.PermissionSets = f.permissionSetPages[index]
	}

	return output, nil
}

func (f *fakeSsoAdminClient) ListAccountsForProvisionedPermissionSet(_ context.Context, params *ssoadmin.ListAccountsForProvisionedPermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.ListAccountsForProvisionedPermissionSetOutput, error) {
	index := pageIndex(params.NextToken)

	output := &ssoadmin.ListAccountsForProvisionedPermissionSetOutput{NextToken: nextToken(index, len(f.accountPages))}
	if index < len(f.accountPages) {
		output.AccountIds = f.accountPages[index]
	}

	return output, nil
}

func (f *fakeSsoAdminClient) ListAccountAssignments(_ context.Context, params *ssoadmin.ListAccountAssignmentsInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.ListAccountAssignmentsOutput, error) {
	index := pageIndex(params.NextToken)

	output := &ssoadmin.ListAccountAssignmentsOutput{NextToken: nextToken(index, len(f.assignmentPages))}
	if index < len(f.assignmentPages) {
		output.AccountAssignments = f.assignmentPages[index]
	}

	return output, nil
}

func (f *fakeSsoAdminClient) ListManagedPoliciesInPermissionSet(_ context.Context, params *ssoadmin.ListManagedPoliciesInPermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.ListManagedPoliciesInPermissionSetOutput, error) {
	index := pageIndex(params.NextToken)

	output := &ssoadmin.ListManagedPoliciesInPermissionSetOutput{NextToken: nextToken(index, len(f.managedPolicyPages))}
	if index < len(f.managedPolicyPages) {
		output.AttachedManagedPolicies = f.managedPolicyPages[index]
	}

	return output, nil
}

func (f *fakeSsoAdminClient) ListCustomerManagedPolicyReferencesInPermissionSet(_ context.Context, params *ssoadmin.ListCustomerManagedPolicyReferencesInPermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.ListCustomerManagedPolicyReferencesInPermissionSetOutput, error) {
	index := pageIndex(params.NextToken)

	output := &ssoadmin.ListCustomerManagedPolicyReferencesInPermissionSetOutput{NextToken: nextToken(index, len(f.customerRefPages))}
	if index < len(f.customerRefPages) {
		output.CustomerManagedPolicyReferences = f.customerRefPages[index]
	}

	return output, nil
}

func (f *fakeSsoAdminClient) DescribePermissionSet(_ context.Context, _ *ssoadmin.DescribePermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.DescribePermissionSetOutput, error) {
	return &ssoadmin.DescribePermissionSetOutput{
		PermissionSet: &ssoTypes.PermissionSet{Name: &f.permissionSetName},
	}, nil
}

func (f *fakeSsoAdminClient) GetInlinePolicyForPermissionSet(_ context.Context, _ *ssoadmin.GetInlinePolicyForPermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.GetInlinePolicyForPermissionSetOutput, error) {
	return &ssoadmin.GetInlinePolicyForPermissionSetOutput{InlinePolicy: &f.inlinePolicy}, nil
}

func (f *fakeSsoAdminClient) GetPermissionsBoundaryForPermissionSet(_ context.Context, _ *ssoadmin.GetPermissionsBoundaryForPermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.GetPermissionsBoundaryForPermissionSetOutput, error) {
	if f.boundaryErr != nil {
		return nil, f.boundaryErr
	}

	return &ssoadmin.GetPermissionsBoundaryForPermissionSetOutput{PermissionsBoundary: f.boundary}, nil
}

func newTestRepository(t *testing.T, client *fakeSsoAdminClient) *AwsSsoAdminRepository {
	t.Helper()

	repo, err := NewAwsSsoAdminRepository(testInstanceArn, client)
	require.NoError(t, err)

	return repo
}

func TestNewAwsSsoAdminRepository_RequiresInstanceArn(t *testing.T) {
	_, err := NewAwsSsoAdminRepository("", &fakeSsoAdminClient{})
	require.Error(t, err)
}

func TestListPermissionSets_SinglePage(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		permissionSetPages: [][]string{{"ps-1", "ps-2"}},
	})

	result, err := repo.ListPermissionSets(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"ps-1", "ps-2"}, result)
}

func TestListPermissionSets_Empty(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{})

	result, err := repo.ListPermissionSets(context.Background())
	require.NoError(t, err)
	require.Empty(t, result)
}

func TestListPermissionSets_MultiplePagesPreserveOrder(t *testing.T) {
	pages := [][]string{{"ps-1", "ps-2"}, {"ps-3"}, {}, {"ps-4", "ps-5"}, {"ps-6"}}

	repo := newTestRepository(t, &fakeSsoAdminClient{permissionSetPages: pages})

	result, err := repo.ListPermissionSets(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"ps-1", "ps-2", "ps-3", "ps-4", "ps-5", "ps-6"}, result)
}

func TestListAccountAssignments_AccumulatesAllPages(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		assignmentPages: [][]ssoTypes.AccountAssignment{
			{
				{AccountId: aws.String("111111111111"), PrincipalId: aws.String("user-1"), PrincipalType: ssoTypes.PrincipalTypeUser},
				{AccountId: aws.String("111111111111"), PrincipalId: aws.String("group-1"), PrincipalType: ssoTypes.PrincipalTypeGroup},
			},
			{
				{AccountId: aws.String("111111111111"), PrincipalId: aws.String("user-2"), PrincipalType: ssoTypes.PrincipalTypeUser},
			},
		},
	})

	result, err := repo.ListAccountAssignments(context.Background(), "ps-1", "111111111111")
	require.NoError(t, err)

	require.Equal(t, []model.AccountAssignment{
		{PrincipalId: "user-1", PrincipalType: model.PrincipalTypeUser, AccountId: "111111111111"},
		{PrincipalId: "group-1", PrincipalType: model.PrincipalTypeGroup, AccountId: "111111111111"},
		{PrincipalId: "user-2", PrincipalType: model.PrincipalTypeUser, AccountId: "111111111111"},
	}, result)
}

func TestListAttachedManagedPolicies_ReturnsArns(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		managedPolicyPages: [][]ssoTypes.AttachedManagedPolicy{
			{{Arn: aws.String("arn:aws:iam::aws:policy/ReadOnlyAccess"), Name: aws.String("ReadOnlyAccess")}},
			{{Arn: aws.String("arn:aws:iam::aws:policy/AdministratorAccess"), Name: aws.String("AdministratorAccess")}},
		},
	})

	result, err := repo.ListAttachedManagedPolicies(context.Background(), "ps-1")
	require.NoError(t, err)
	require.Equal(t, []string{"arn:aws:iam::aws:policy/ReadOnlyAccess", "arn:aws:iam::aws:policy/AdministratorAccess"}, result)
}

func TestGetPermissionsBoundary_NotFoundMeansNoBoundary(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		boundaryErr: &ssoTypes.ResourceNotFoundException{Message: aws.String("no boundary attached")},
	})

	boundary, err := repo.GetPermissionsBoundary(context.Background(), "ps-1")
	require.NoError(t, err)
	require.Equal(t, "", boundary)
}

func TestGetPermissionsBoundary_WrappedNotFoundIsSuppressed(t *testing.T) {
	wrapped := fmt.Errorf("operation error: %w", &ssoTypes.ResourceNotFoundException{})

	repo := newTestRepository(t, &fakeSsoAdminClient{boundaryErr: wrapped})

	boundary, err := repo.GetPermissionsBoundary(context.Background(), "ps-1")
	require.NoError(t, err)
	require.Equal(t, "", boundary)
}

func TestGetPermissionsBoundary_OtherErrorsPropagate(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		boundaryErr: &ssoTypes.AccessDeniedException{Message: aws.String("denied")},
	})

	_, err := repo.GetPermissionsBoundary(context.Background(), "ps-1")
	require.Error(t, err)

	repo = newTestRepository(t, &fakeSsoAdminClient{boundaryErr: errors.New("throttled")})

	_, err = repo.GetPermissionsBoundary(context.Background(), "ps-1")
	require.Error(t, err)
}

func TestGetPermissionsBoundary_ManagedPolicyArn(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		boundary: &ssoTypes.PermissionsBoundary{ManagedPolicyArn: aws.String("arn:aws:iam::aws:policy/boundary")},
	})

	boundary, err := repo.GetPermissionsBoundary(context.Background(), "ps-1")
	require.NoError(t, err)
	require.Equal(t, "arn:aws:iam::aws:policy/boundary", boundary)
}

func TestGetPermissionsBoundary_CustomerManagedReference(t *testing.T) {
	repo := newTestRepository(t, &fakeSsoAdminClient{
		boundary: &ssoTypes.PermissionsBoundary{
			CustomerManagedPolicyReference: &ssoTypes.CustomerManagedPolicyReference{
				Name: aws.String("boundary-policy"),
				Path: aws.String("/security/"),
			},
		},
	})

	boundary, err := repo.GetPermissionsBoundary(context.Background(), "ps-1")
	require.NoError(t, err)
	require.Equal(t, "/security/boundary-policy", boundary)
}
