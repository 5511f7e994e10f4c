package transport_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/buildbarn/bb-splitter/internal/mock"
	"github.com/buildbarn/bb-splitter/pkg/testutil"
	"github.com/buildbarn/bb-splitter/pkg/transport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestS3PartTransportUpload(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	s3Client := mock.NewMockS3Client(ctrl)
	uuidGenerator := mock.NewMockUUIDGenerator(ctrl)
	partTransport := transport.NewS3PartTransport(s3Client, "my-bucket", "parts/", uuidGenerator.Call)

	t.Run("Success", func(t *testing.T) {
		uuidGenerator.EXPECT().Call().Return(uuid.Must(uuid.Parse("b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e")), nil)
		s3Client.EXPECT().PutObject(ctx, gomock.Any()).DoAndReturn(
			func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				require.Equal(t, "my-bucket", *params.Bucket)
				require.Equal(t, "parts/b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e", *params.Key)
				require.Equal(t, int64(5), *params.ContentLength)
				data, err := io.ReadAll(params.Body)
				require.NoError(t, err)
				require.Equal(t, []byte("Hello"), data)
				return &s3.PutObjectOutput{}, nil
			})

		locator, err := partTransport.Upload(ctx, []byte("Hello"))
		require.NoError(t, err)
		require.Equal(t, "b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e", locator)
	})

	t.Run("AccessDenied", func(t *testing.T) {
		uuidGenerator.EXPECT().Call().Return(uuid.Must(uuid.Parse("b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e")), nil)
		s3Client.EXPECT().PutObject(ctx, gomock.Any()).Return(nil, &smithy.GenericAPIError{
			Code:    "AccessDenied",
			Message: "Access Denied",
		})

		_, err := partTransport.Upload(ctx, []byte("Hello"))
		require.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("Unavailable", func(t *testing.T) {
		uuidGenerator.EXPECT().Call().Return(uuid.Must(uuid.Parse("b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e")), nil)
		s3Client.EXPECT().PutObject(ctx, gomock.Any()).Return(nil, &smithy.GenericAPIError{
			Code:    "SlowDown",
			Message: "Please reduce your request rate",
		})

		_, err := partTransport.Upload(ctx, []byte("Hello"))
		testutil.RequireEqualStatus(t, status.Error(codes.Unavailable, "Failed to put object: api error SlowDown: Please reduce your request rate"), err)
	})
}

func TestS3PartTransportDownload(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	s3Client := mock.NewMockS3Client(ctrl)
	uuidGenerator := mock.NewMockUUIDGenerator(ctrl)
	partTransport := transport.NewS3PartTransport(s3Client, "my-bucket", "parts/", uuidGenerator.Call)

	t.Run("Success", func(t *testing.T) {
		s3Client.EXPECT().GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String("my-bucket"),
			Key:    aws.String("parts/b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e"),
		}).Return(&s3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewBufferString("Hello")),
			ContentLength: aws.Int64(5),
		}, nil)

		data, err := partTransport.Download(ctx, "b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e")
		require.NoError(t, err)
		require.Equal(t, []byte("Hello"), data)
	})

	t.Run("Truncated", func(t *testing.T) {
		s3Client.EXPECT().GetObject(ctx, gomock.Any()).Return(&s3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewBufferString("Hel")),
			ContentLength: aws.Int64(5),
		}, nil)

		_, err := partTransport.Download(ctx, "b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e")
		testutil.RequireEqualStatus(t, status.Error(codes.Unavailable, "Object has length 3, while 5 bytes were announced"), err)
	})

	t.Run("NoSuchKey", func(t *testing.T) {
		s3Client.EXPECT().GetObject(ctx, gomock.Any()).Return(nil, &types.NoSuchKey{})

		_, err := partTransport.Download(ctx, "b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e")
		require.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestS3PartTransportDelete(t *testing.T) {
	ctrl, ctx := gomock.WithContext(context.Background(), t)

	s3Client := mock.NewMockS3Client(ctrl)
	uuidGenerator := mock.NewMockUUIDGenerator(ctrl)
	partTransport := transport.NewS3PartTransport(s3Client, "my-bucket", "", uuidGenerator.Call)

	s3Client.EXPECT().DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String("my-bucket"),
		Key:    aws.String("b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e"),
	}).Return(&s3.DeleteObjectOutput{}, nil)

	require.NoError(t, partTransport.Delete(ctx, "b5f1b8a4-4c5c-4bde-9a3a-4fcb3f0f6c9e"))
}
