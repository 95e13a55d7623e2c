package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SnsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ SnsClient = (*sns.Client)(nil)

// AwsSnsRepository sends fire-and-forget completion notifications to the
// configured topic.
type AwsSnsRepository struct {
	topicArn string
	client   SnsClient
}

func NewAwsSnsRepository(topicArn string, client SnsClient) *AwsSnsRepository {
	return &AwsSnsRepository{
		topicArn: topicArn,
		client:   client,
	}
}

func (repo *AwsSnsRepository) SendCompletionNotification(ctx context.Context, subject string, message string) error {
	_, err := repo.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &repo.topicArn,
		Subject:  &subject,
		Message:  &message,
	})
	if err != nil {
		return fmt.Errorf("publish notification to %q: %w", repo.topicArn, err)
	}

	return nil
}
