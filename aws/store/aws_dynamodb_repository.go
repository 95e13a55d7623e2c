package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/model"
)

// DynamoDBClient is the subset of the DynamoDB API used by the intermediate
// store.
type DynamoDBClient interface {
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ DynamoDBClient = (*dynamodb.Client)(nil)

// AwsDynamoDbRepository is the intermediate store between the collector and
// the reporter: one table of permission set records keyed by
// (instanceArn, permissionSetArn) and one table of user records keyed by
// userId. Writes overwrite by key, so re-running a collection supersedes the
// previous snapshot.
type AwsDynamoDbRepository struct {
	client             DynamoDBClient
	permissionSetTable string
	userTable          string
}

func NewAwsDynamoDbRepository(client DynamoDBClient, permissionSetTable string, userTable string) *AwsDynamoDbRepository {
	return &AwsDynamoDbRepository{
		client:             client,
		permissionSetTable: permissionSetTable,
		userTable:          userTable,
	}
}

func (repo *AwsDynamoDbRepository) PutPermissionSet(ctx context.Context, record *model.PermissionSetRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validate permission set record: %w", err)
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal permission set record %q: %w", record.Arn, err)
	}

	_, err = repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &repo.permissionSetTable,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put permission set record %q: %w", record.Arn, err)
	}

	return nil
}

func (repo *AwsDynamoDbRepository) PutUser(ctx context.Context, record *model.UserRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validate user record: %w", err)
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal user record %q: %w", record.UserId, err)
	}

	_, err = repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &repo.userTable,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put user record %q: %w", record.UserId, err)
	}

	return nil
}

// QueryPermissionSetsByPrincipal returns every permission set record of the
// instance whose assignment list contains the principal. The contains filter
// matches on any principal in the record, so callers still have to check the
// individual assignment entries.
func (repo *AwsDynamoDbRepository) QueryPermissionSetsByPrincipal(ctx context.Context, instanceArn string, principalId string) ([]model.PermissionSetRecord, error) {
	var result []model.PermissionSetRecord

	iterator := dynamodb.NewQueryPaginator(repo.client, &dynamodb.QueryInput{
		TableName:              &repo.permissionSetTable,
		KeyConditionExpression: aws.String("instanceArn = :instanceArn"),
		FilterExpression:       aws.String("contains(principalIds, :principalId)"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":instanceArn": &ddbTypes.AttributeValueMemberS{Value: instanceArn},
			":principalId": &ddbTypes.AttributeValueMemberS{Value: principalId},
		},
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query permission sets for principal %q: %w", principalId, err)
		}

		for _, item := range page.Items {
			var record model.PermissionSetRecord

			err = attributevalue.UnmarshalMap(item, &record)
			if err != nil {
				return nil, fmt.Errorf("unmarshal permission set record: %w", err)
			}

			if err = record.Validate(); err != nil {
				return nil, fmt.Errorf("validate permission set record: %w", err)
			}

			result = append(result, record)
		}
	}

	return result, nil
}

func (repo *AwsDynamoDbRepository) ScanUsers(ctx context.Context) ([]model.UserRecord, error) {
	var result []model.UserRecord

	iterator := dynamodb.NewScanPaginator(repo.client, &dynamodb.ScanInput{
		TableName: &repo.userTable,
	})

	for iterator.HasMorePages() {
		page, err := iterator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan user records: %w", err)
		}

		for _, item := range page.Items {
			var record model.UserRecord

			err = attributevalue.UnmarshalMap(item, &record)
			if err != nil {
				return nil, fmt.Errorf("unmarshal user record: %w", err)
			}

			if err = record.Validate(); err != nil {
				return nil, fmt.Errorf("validate user record: %w", err)
			}

			result = append(result, record)
		}
	}

	return result, nil
}
