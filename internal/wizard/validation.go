package wizard

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lockplane/ownershift/internal/account"
	"github.com/lockplane/ownershift/internal/cloud"
)

var (
	regionPattern     = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d$`)
	userPoolPattern   = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d_[0-9a-zA-Z]+$`)
	tableNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,255}$`)
	bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
)

// ValidateEnvironmentName checks if an environment name is valid
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name cannot be empty")
	}

	for _, ch := range name {
		isValid := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
		if !isValid {
			return fmt.Errorf("environment name must contain only letters, numbers, underscores, and hyphens")
		}
	}

	return nil
}

// ValidateRegion checks the shape of an AWS region name.
func ValidateRegion(region string) error {
	if !regionPattern.MatchString(region) {
		return fmt.Errorf("region %q is not a valid AWS region (e.g. us-east-1)", region)
	}
	return nil
}

// ValidateUserPoolID checks the <region>_<id> shape of a Cognito user pool id.
func ValidateUserPoolID(id string) error {
	if !userPoolPattern.MatchString(id) {
		return fmt.Errorf("user pool id %q must look like us-east-1_AbCdEf123", id)
	}
	return nil
}

// ValidateTableName applies the DynamoDB table naming rules.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("table name must be 3-255 letters, numbers, underscores, hyphens or dots")
	}
	return nil
}

// ValidateBucketName applies the S3 bucket naming rules.
func ValidateBucketName(name string) error {
	if !bucketNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("bucket name %q is not a valid S3 bucket name", name)
	}
	return nil
}

// ValidateEndpoint checks that an endpoint override is an absolute URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute URL such as http://localhost:4566")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https")
	}
	return nil
}

// ValidateEnvironment checks every field the access mode requires.
func ValidateEnvironment(env EnvironmentInput) map[string]string {
	errs := map[string]string{}
	check := func(field string, err error) {
		if err != nil {
			errs[field] = err.Error()
		}
	}
	check("name", ValidateEnvironmentName(env.Name))
	check("region", ValidateRegion(env.Region))
	check("identity_pool_id", ValidateUserPoolID(env.IdentityPoolID))
	check("table_name", ValidateTableName(env.TableName))
	check("bucket_name", ValidateBucketName(env.BucketName))

	switch env.AccessMode {
	case "profile":
		if env.Profile == "" {
			errs["profile"] = "profile cannot be empty"
		}
	case "keys":
		if env.AccessKeyID == "" || env.SecretAccessKey == "" {
			errs["keys"] = "access key id and secret access key are required"
		}
	case "endpoint":
		check("endpoint", ValidateEndpoint(env.Endpoint))
	}
	return errs
}

// Settings converts the input to AWS client settings.
func Settings(env EnvironmentInput) cloud.Settings {
	s := cloud.Settings{Region: env.Region}
	switch env.AccessMode {
	case "profile":
		s.Profile = env.Profile
	case "keys":
		s.AccessKeyID = env.AccessKeyID
		s.SecretAccessKey = env.SecretAccessKey
	case "endpoint":
		s.Endpoint = env.Endpoint
		s.AccessKeyID = "test"
		s.SecretAccessKey = "test"
	}
	return s
}

// TestCredentials resolves the caller identity of env with a short timeout.
func TestCredentials(ctx context.Context, env EnvironmentInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clients, err := cloud.New(ctx, Settings(env))
	if err != nil {
		return "", err
	}
	return account.NewResolver(clients.STS).AccountID(ctx)
}
