package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/require"
)

type fakeStsClient struct {
	account string
	err     error
}

func (f *fakeStsClient) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestGetAccountId(t *testing.T) {
	accountId, err := GetAccountId(context.Background(), &fakeStsClient{account: "123456789012"})
	require.NoError(t, err)
	require.Equal(t, "123456789012", accountId)
}

func TestGetAccountId_Error(t *testing.T) {
	_, err := GetAccountId(context.Background(), &fakeStsClient{err: errors.New("expired token")})
	require.Error(t, err)
}
