package objectstore_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/objectstore"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func newStore(t *testing.T, client *mockClient) *objectstore.Store {
	t.Helper()
	s, err := objectstore.New(context.Background(), objectstore.Config{
		Bucket: "archive",
		Region: "eu-west-2",
		Prefix: "invoices/",
	}, objectstore.WithClient(client))
	require.NoError(t, err)
	return s
}

func TestStorePut(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	var body []byte
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "archive" &&
			*in.Key == "invoices/2025/INV-202501-000001.pdf" &&
			*in.ContentType == "application/pdf" &&
			*in.ContentLength == 4 &&
			in.ServerSideEncryption == types.ServerSideEncryptionAes256
	})).Run(func(args mock.Arguments) {
		body, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(&s3.PutObjectOutput{}, nil)

	key, err := newStore(t, client).Put(context.Background(), objectstore.Object{
		Key:         "2025/INV-202501-000001.pdf",
		ContentType: "application/pdf",
		Body:        []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "invoices/2025/INV-202501-000001.pdf", key)
	assert.Equal(t, []byte("%PDF"), body)
	client.AssertExpectations(t)
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("PutObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"})
	client.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, &types.NoSuchKey{})

	s := newStore(t, client)

	_, err := s.Put(context.Background(), objectstore.Object{Key: "a.pdf", Body: []byte("x")})
	assert.ErrorIs(t, err, objectstore.ErrAccessDenied)

	_, err = s.Get(context.Background(), "invoices/missing.pdf")
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)

	_, err = s.Put(context.Background(), objectstore.Object{})
	assert.ErrorIs(t, err, objectstore.ErrInvalidConfig)
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "invoices/a.pdf"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("pdf")))}, nil)

	data, err := newStore(t, client).Get(context.Background(), "invoices/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)
}

func TestNewRequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := objectstore.New(context.Background(), objectstore.Config{Region: "eu-west-2"})
	assert.ErrorIs(t, err, objectstore.ErrInvalidConfig)
	assert.False(t, objectstore.Config{}.Enabled())
}
