package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func NewS3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg)
}

// NewS3Service archives into bucketName through client.
func NewS3Service(client *s3.Client, bucketName string) *S3Service {
	return newS3Service(client, s3.NewPresignClient(client), bucketName)
}
