package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/utils"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ S3Client = (*s3.Client)(nil)

// AwsS3Repository stores finished report files in the configured bucket.
type AwsS3Repository struct {
	bucket string
	client S3Client
}

func NewAwsS3Repository(bucket string, client S3Client) *AwsS3Repository {
	return &AwsS3Repository{
		bucket: bucket,
		client: client,
	}
}

func (repo *AwsS3Repository) Bucket() string {
	return repo.bucket
}

// UploadReport writes the report body under the given key, overwriting any
// previous object, and returns the key of the stored object.
func (repo *AwsS3Repository) UploadReport(ctx context.Context, key string, body io.Reader) (string, error) {
	_, err := repo.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &repo.bucket,
		Key:    &key,
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("upload report to bucket %q: %w", repo.bucket, err)
	}

	utils.Logger.Info(fmt.Sprintf("Report uploaded to s3://%s/%s", repo.bucket, key))

	return key, nil
}
