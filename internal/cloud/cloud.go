// Package cloud builds AWS SDK clients from ownershift settings.
package cloud

import (
	"context"
	"fmt"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Settings selects the account, region and endpoint for the clients.
type Settings struct {
	Region  string
	Profile string
	// AccessKeyID and SecretAccessKey switch to static credentials when both
	// are set.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides every service endpoint, e.g. a LocalStack URL.
	Endpoint string
}

// Clients holds one client per service the tool talks to.
type Clients struct {
	Config   aws.Config
	S3       *s3.Client
	DynamoDB *dynamodb.Client
	Cognito  *cip.Client
	STS      *sts.Client

	endpoint string
}

// LoadConfig resolves an aws.Config using the default credential chain,
// narrowed by the settings.
func LoadConfig(ctx context.Context, s Settings) (aws.Config, error) {
	region := s.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if s.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(s.Profile))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// New loads the configuration and builds every client.
func New(ctx context.Context, s Settings) (*Clients, error) {
	cfg, err := LoadConfig(ctx, s)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg, s.Endpoint), nil
}

// FromConfig builds the clients over an existing configuration.
func FromConfig(cfg aws.Config, endpoint string) *Clients {
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return &Clients{
		Config:   cfg,
		endpoint: endpoint,
		S3:       s3.NewFromConfig(cfg, s3Options(endpoint)),
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = base
		}),
		Cognito: cip.NewFromConfig(cfg, func(o *cip.Options) {
			o.BaseEndpoint = base
		}),
		STS: sts.NewFromConfig(cfg, func(o *sts.Options) {
			o.BaseEndpoint = base
		}),
	}
}

// S3ForRegion returns an S3 client pinned to region, used for buckets that
// live outside the environment's region.
func (c *Clients) S3ForRegion(region string) *s3.Client {
	if region == "" || region == c.Config.Region {
		return c.S3
	}
	return s3.NewFromConfig(c.Config, s3Options(c.endpoint), func(o *s3.Options) {
		o.Region = region
	})
}

func s3Options(endpoint string) func(*s3.Options) {
	return func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}
}
