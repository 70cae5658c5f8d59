package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func TestS3Save(t *testing.T) {
	api := &mockObjectAPI{}
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return *in.Bucket == "proofs" && strings.HasPrefix(*in.Key, "photos/") &&
			*in.ContentType == "image/jpeg" && string(body) == "img"
	})).Return(nil)
	s := &S3{client: api, bucket: "proofs"}

	key, err := s.Save(context.Background(), []byte("img"), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "photos/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	api.AssertExpectations(t)
}

func TestS3SaveError(t *testing.T) {
	api := &mockObjectAPI{}
	api.On("PutObject", mock.Anything, mock.Anything).Return(errors.New("boom"))
	s := &S3{client: api, bucket: "proofs"}

	_, err := s.Save(context.Background(), []byte("img"), "image/png")
	assert.Error(t, err)
}

func TestS3Delete(t *testing.T) {
	api := &mockObjectAPI{}
	api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "photos/a.jpg"
	})).Return(nil)
	s := &S3{client: api, bucket: "proofs"}

	require.NoError(t, s.Delete(context.Background(), "photos/a.jpg"))
	require.NoError(t, s.Delete(context.Background(), ""))
	api.AssertNumberOfCalls(t, "DeleteObject", 1)
}
