package transport

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	cloud_aws "github.com/buildbarn/bb-splitter/pkg/cloud/aws"
	"github.com/buildbarn/bb-splitter/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func convertS3Error(ctx context.Context, err error, msg string) error {
	if ctxErr := util.StatusFromContext(ctx); ctxErr != nil {
		return util.StatusWrap(ctxErr, msg)
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return util.StatusWrapWithCode(err, codes.NotFound, msg)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return util.StatusWrapWithCode(err, codes.NotFound, msg)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return util.StatusWrapWithCode(err, codes.PermissionDenied, msg)
		case "NoSuchBucket":
			return util.StatusWrapWithCode(err, codes.FailedPrecondition, msg)
		case "EntityTooLarge":
			return util.StatusWrapWithCode(err, codes.ResourceExhausted, msg)
		}
	}
	return util.StatusWrapWithCode(err, codes.Unavailable, msg)
}

type s3PartTransport struct {
	s3Client      cloud_aws.S3Client
	bucketName    string
	keyPrefix     string
	uuidGenerator util.UUIDGenerator
}

// NewS3PartTransport creates a PartTransport that stores every part as
// a separate object in an S3 bucket. Object keys consist of a fixed
// prefix, followed by the locator.
func NewS3PartTransport(s3Client cloud_aws.S3Client, bucketName, keyPrefix string, uuidGenerator util.UUIDGenerator) PartTransport {
	return &s3PartTransport{
		s3Client:      s3Client,
		bucketName:    bucketName,
		keyPrefix:     keyPrefix,
		uuidGenerator: uuidGenerator,
	}
}

func (pt *s3PartTransport) getKey(locator string) *string {
	return aws.String(pt.keyPrefix + locator)
}

func (pt *s3PartTransport) Upload(ctx context.Context, data []byte) (string, error) {
	id, err := pt.uuidGenerator()
	if err != nil {
		return "", util.StatusWrap(err, "Failed to generate locator")
	}
	locator := id.String()
	if _, err := pt.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(pt.bucketName),
		Key:           pt.getKey(locator),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}); err != nil {
		return "", convertS3Error(ctx, err, "Failed to put object")
	}
	return locator, nil
}

func (pt *s3PartTransport) Download(ctx context.Context, locator string) ([]byte, error) {
	result, err := pt.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(pt.bucketName),
		Key:    pt.getKey(locator),
	})
	if err != nil {
		return nil, convertS3Error(ctx, err, "Failed to get object")
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, convertS3Error(ctx, err, "Failed to read object")
	}
	if contentLength := result.ContentLength; contentLength != nil && *contentLength != int64(len(data)) {
		return nil, status.Errorf(codes.Unavailable, "Object has length %d, while %d bytes were announced", len(data), *contentLength)
	}
	return data, nil
}

func (pt *s3PartTransport) Delete(ctx context.Context, locator string) error {
	if _, err := pt.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(pt.bucketName),
		Key:    pt.getKey(locator),
	}); err != nil {
		return convertS3Error(ctx, err, "Failed to delete object")
	}
	return nil
}
