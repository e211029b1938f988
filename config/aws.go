package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// ArchiveEnabled reports whether chains and final statuses are archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.AwsBucketName != ""
}

// InitializeAws loads the shared AWS configuration. Credentials and region
// come from the standard AWS environment variables and profiles.
func InitializeAws(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("AWS_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error while initializing aws: %w", err)
	}
	return cfg, nil
}
