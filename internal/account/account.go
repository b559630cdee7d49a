// Package account resolves the AWS account the tool runs against and the
// backup bucket derived from it.
package account

import (
	"context"
	"errors"
	"fmt"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	// DefaultBucketPrefix is the first segment of the backup bucket name.
	DefaultBucketPrefix = "ownershift"
	// DefaultBackupRegion is the region the backup bucket lives in.
	DefaultBackupRegion = "us-east-1"
)

// CallerAPI is the subset of the STS client the resolver uses.
type CallerAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Resolver looks up the caller's account.
type Resolver struct {
	api CallerAPI
}

// NewResolver wraps an STS client.
func NewResolver(api CallerAPI) *Resolver {
	return &Resolver{api: api}
}

// AccountID returns the account id of the active credentials.
func (r *Resolver) AccountID(ctx context.Context) (string, error) {
	out, err := r.api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	id := aws.ToString(out.Account)
	if id == "" {
		return "", errors.New("get caller identity: no account returned")
	}
	return id, nil
}

// BackupBucketName returns the backup bucket for an account. Empty prefix or
// region use the defaults.
func BackupBucketName(prefix, accountID, region string) string {
	if prefix == "" {
		prefix = DefaultBucketPrefix
	}
	if region == "" {
		region = DefaultBackupRegion
	}
	return fmt.Sprintf("%s-%s-%s-main-acct-migration-backup", prefix, accountID, region)
}
