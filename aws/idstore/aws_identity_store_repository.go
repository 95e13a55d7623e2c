package idstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	idTypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/model"
)

// IdentityStoreClient is the subset of the Identity Store API the collector
// needs.
type IdentityStoreClient interface {
	identitystore.ListUsersAPIClient
	identitystore.ListGroupMembershipsForMemberAPIClient
	DescribeGroup(ctx context.Context, params *identitystore.DescribeGroupInput, optFns ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error)
}

var _ IdentityStoreClient = (*identitystore.Client)(nil)

type AwsIdentityStoreRepository struct {
	identityStoreId string
	client          IdentityStoreClient
}

func NewAwsIdentityStoreRepository(identityStoreId string, client IdentityStoreClient) (*AwsIdentityStoreRepository, error) {
	if identityStoreId == "" {
		return nil, errors.New("identity store id is not set")
	}

	return &AwsIdentityStoreRepository{
		identityStoreId: identityStoreId,
		client:          client,
	}, nil
}

func (repo *AwsIdentityStoreRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	var result []model.User

	iterator := identitystore.NewListUsersPaginator(repo.client, &identitystore.ListUsersInput{
		IdentityStoreId: &repo.identityStoreId,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}

		for _, user := range page.Users {
			result = append(result, model.User{
				Id:   aws.ToString(user.UserId),
				Name: aws.ToString(user.UserName),
			})
		}
	}

	return result, nil
}

// ListGroupMemberships returns the ids of all groups the user is a member of,
// in the order the identity store reports them. A user without memberships
// yields an empty list.
func (repo *AwsIdentityStoreRepository) ListGroupMemberships(ctx context.Context, userId string) ([]string, error) {
	var result []string

	iterator := identitystore.NewListGroupMembershipsForMemberPaginator(repo.client, &identitystore.ListGroupMembershipsForMemberInput{
		IdentityStoreId: &repo.identityStoreId,
		MemberId:        &idTypes.MemberIdMemberUserId{Value: userId},
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list group memberships for user %q: %w", userId, err)
		}

		for _, membership := range page.GroupMemberships {
			result = append(result, aws.ToString(membership.GroupId))
		}
	}

	return result, nil
}

func (repo *AwsIdentityStoreRepository) GetGroupDisplayName(ctx context.Context, groupId string) (string, error) {
	group, err := repo.client.DescribeGroup(ctx, &identitystore.DescribeGroupInput{
		IdentityStoreId: &repo.identityStoreId,
		GroupId:         &groupId,
	})

	if err != nil {
		return "", fmt.Errorf("describe group %q: %w", groupId, err)
	}

	return aws.ToString(group.DisplayName), nil
}
