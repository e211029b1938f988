package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mahirjain10/savana-gateway/internal/relay"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/mahirjain10/savana-gateway/internal/utils"
)

const (
	putTimeout    = 10 * time.Second
	presignExpiry = 15 * time.Minute
	chainPrefix   = "chains/"
	eventPrefix   = "events/"
)

// ErrNotArchived is returned when a job has no archived final event yet.
var ErrNotArchived = errors.New("no archived event for resource")

type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Service keeps a copy of submitted process chains and of the final status
// event of every job.
type S3Service struct {
	client     objectStore
	presigner  objectPresigner
	bucketName string
}

func newS3Service(client objectStore, presigner objectPresigner, bucketName string) *S3Service {
	return &S3Service{client: client, presigner: presigner, bucketName: bucketName}
}

func ChainKey(resourceID string) string { return chainPrefix + resourceID + ".json" }

func EventKey(resourceID string) string { return eventPrefix + resourceID + ".json" }

// PutJSON stores body under key.
func (service *S3Service) PutJSON(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	_, err := service.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(service.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("couldn't upload object with key: %s, AWS error: %w", key, err)
	}
	return nil
}

// ArchiveChain stores the chain submitted for resourceID.
func (service *S3Service) ArchiveChain(ctx context.Context, resourceID string, chain *types.ProcessChain) (string, error) {
	body, err := utils.SerializeJSON(chain)
	if err != nil {
		return "", err
	}
	key := ChainKey(resourceID)
	return key, service.PutJSON(ctx, key, body)
}

// ArchiveEvent stores the subscriber payload of a terminal event.
func (service *S3Service) ArchiveEvent(ctx context.Context, event *types.StatusEvent) (string, error) {
	body, err := relay.Payload(event)
	if err != nil {
		return "", err
	}
	key := EventKey(event.Handle.ResourceID)
	return key, service.PutJSON(ctx, key, body)
}

// PresignEvent returns a temporary download URL for the archived final event
// of resourceID, or ErrNotArchived when there is none.
func (service *S3Service) PresignEvent(ctx context.Context, resourceID string) (string, error) {
	key := EventKey(resourceID)
	headCtx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()
	_, err := service.client.HeadObject(headCtx, &s3.HeadObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return "", fmt.Errorf("%w: %s", ErrNotArchived, resourceID)
		}
		return "", fmt.Errorf("couldn't check object with key: %s, AWS error: %w", key, err)
	}

	req, err := service.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("couldn't presign %s: %w", key, err)
	}
	return req.URL, nil
}
