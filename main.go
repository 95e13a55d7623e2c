package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sso-tools/identity-center-policy-analyzer/aws/collector"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/constants"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/iam"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/idstore"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/notify"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/repo"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/reporter"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/sink"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/sso"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/store"
	"github.com/sso-tools/identity-center-policy-analyzer/aws/utils"
)

type options struct {
	instanceArn     string
	identityStoreId string
	ssoRegion       string
	permissionTable string
	userTable       string
	bucket          string
	topicArn        string
	profile         string
	concurrency     int
	debug           bool
}

func main() {
	// A .env file is optional; deployments normally configure through the
	// environment or CLI flags.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{}

	rootCmd := &cobra.Command{
		Use:          "identity-center-policy-analyzer",
		Short:        "Audit AWS IAM Identity Center permission set assignments",
		Long:         "Collects permission sets, account assignments, attached policies and identity store users, then reports every direct and group-inherited grant per user.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				utils.SetDebugLogging()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.instanceArn, "instance-arn", os.Getenv(constants.EnvInstanceArn), "ARN of the IAM Identity Center instance")
	rootCmd.PersistentFlags().StringVar(&opts.permissionTable, "permission-table", os.Getenv(constants.EnvPermissionTable), "DynamoDB table holding permission set records")
	rootCmd.PersistentFlags().StringVar(&opts.userTable, "user-table", os.Getenv(constants.EnvUserTable), "DynamoDB table holding user records")
	rootCmd.PersistentFlags().StringVar(&opts.profile, "profile", os.Getenv(constants.EnvAwsProfile), "AWS shared config profile to use")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect the permission set and identity store graphs into DynamoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollection(ctx, opts)
		},
	}
	collectCmd.Flags().StringVar(&opts.identityStoreId, "identity-store-id", os.Getenv(constants.EnvIdentityStoreId), "Id of the identity store backing the instance")
	collectCmd.Flags().StringVar(&opts.ssoRegion, "sso-region", os.Getenv(constants.EnvSsoRegion), "Region the Identity Center instance is deployed in")
	collectCmd.Flags().IntVar(&opts.concurrency, "concurrency", constants.DefaultConcurrency, "Number of concurrent AWS API workers")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Join the collected snapshots into a CSV report on S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(ctx, opts)
		},
	}
	reportCmd.Flags().StringVar(&opts.bucket, "bucket", os.Getenv(constants.EnvBucketName), "S3 bucket the report is uploaded to")
	reportCmd.Flags().StringVar(&opts.topicArn, "topic-arn", os.Getenv(constants.EnvTopicArn), "SNS topic notified on completion")

	rootCmd.AddCommand(collectCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		utils.Logger.Error(fmt.Sprintf("Run failed: %s", err.Error()))
		os.Exit(1)
	}
}

func runCollection(ctx context.Context, opts options) error {
	if err := validateTables(opts); err != nil {
		return err
	}

	// Identity Center APIs must be called in the region the instance is
	// deployed in; the store and IAM clients use the default region.
	ssoCfg, err := repo.GetAWSConfig(ctx, opts.profile, opts.ssoRegion)
	if err != nil {
		return fmt.Errorf("load AWS config for SSO region: %w", err)
	}

	cfg, err := repo.GetAWSConfig(ctx, opts.profile, "")
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	if err = logCallerAccount(ctx, cfg); err != nil {
		return err
	}

	ssoRepo, err := sso.NewAwsSsoAdminRepository(opts.instanceArn, ssoadmin.NewFromConfig(ssoCfg))
	if err != nil {
		return err
	}

	identityRepo, err := idstore.NewAwsIdentityStoreRepository(opts.identityStoreId, identitystore.NewFromConfig(ssoCfg))
	if err != nil {
		return err
	}

	policyRepo := iam.NewAwsIamRepository(iamsvc.NewFromConfig(cfg))
	snapshotStore := store.NewAwsDynamoDbRepository(dynamodb.NewFromConfig(cfg), opts.permissionTable, opts.userTable)

	return collector.New(opts.instanceArn, opts.concurrency, ssoRepo, identityRepo, policyRepo, snapshotStore).Run(ctx)
}

func runReport(ctx context.Context, opts options) error {
	if err := validateTables(opts); err != nil {
		return err
	}

	if opts.bucket == "" {
		return errors.New("report bucket is not set")
	}

	if opts.topicArn == "" {
		return errors.New("notification topic ARN is not set")
	}

	cfg, err := repo.GetAWSConfig(ctx, opts.profile, "")
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	if err = logCallerAccount(ctx, cfg); err != nil {
		return err
	}

	snapshotStore := store.NewAwsDynamoDbRepository(dynamodb.NewFromConfig(cfg), opts.permissionTable, opts.userTable)
	reportSink := sink.NewAwsS3Repository(opts.bucket, s3.NewFromConfig(cfg))
	notifyRepo := notify.NewAwsSnsRepository(opts.topicArn, sns.NewFromConfig(cfg))

	return reporter.New(opts.instanceArn, snapshotStore, reportSink, notifyRepo).Run(ctx)
}

// logCallerAccount resolves the account behind the credentials before any
// work starts, so credential problems surface immediately.
func logCallerAccount(ctx context.Context, cfg awssdk.Config) error {
	accountId, err := repo.GetAccountId(ctx, sts.NewFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("resolve caller account: %w", err)
	}

	utils.Logger.Info(fmt.Sprintf("Running against AWS account %s", accountId))

	return nil
}

func validateTables(opts options) error {
	if opts.instanceArn == "" {
		return errors.New("SSO instance ARN is not set")
	}

	if opts.permissionTable == "" || opts.userTable == "" {
		return errors.New("permission and user table names are not set")
	}

	return nil
}
