package constants

const (
	// Environment variables used as fallbacks for the CLI flags.
	EnvInstanceArn     = "INSTANCE_ARN"
	EnvIdentityStoreId = "IDENTITY_STORE_ID"
	EnvSsoRegion       = "SSO_DEPLOYED_REGION"
	EnvPermissionTable = "PERMISSION_TABLE_NAME"
	EnvUserTable       = "USER_TABLE_NAME"
	EnvBucketName      = "BUCKET_NAME"
	EnvTopicArn        = "TOPIC_ARN"
	EnvAwsProfile      = "AWS_PROFILE"

	// DefaultConcurrency is the number of concurrent workers used for AWS API
	// calls during collection.
	DefaultConcurrency = 5
)
