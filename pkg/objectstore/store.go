// Package objectstore archives generated documents to S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Client is the subset of *s3.Client the store uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Object is a document to archive.
type Object struct {
	Key         string
	ContentType string
	Body        []byte
	Metadata    map[string]string
}

// Store writes objects under a fixed key prefix. It is safe for concurrent use.
type Store struct {
	client        Client
	bucket        string
	prefix        string
	uploadTimeout time.Duration
}

type Option func(*options)

type options struct {
	client     Client
	httpClient *http.Client
}

// WithClient injects a preconfigured client, typically a mock.
func WithClient(c Client) Option {
	return func(o *options) { o.client = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds a Store from cfg, loading AWS credentials from the default
// chain unless static keys are configured.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket and region are required", ErrInvalidConfig)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		if o.httpClient != nil {
			loadOpts = append(loadOpts, config.WithHTTPClient(o.httpClient))
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
		}

		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        strings.TrimPrefix(cfg.Prefix, "/"),
		uploadTimeout: cfg.UploadTimeout,
	}, nil
}

// Put uploads obj with server-side encryption and returns its full key.
func (s *Store) Put(ctx context.Context, obj Object) (string, error) {
	if obj.Key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidConfig)
	}
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	key := path.Join(s.prefix, obj.Key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(obj.Body),
		ContentLength:        aws.Int64(int64(len(obj.Body))),
		ContentType:          aws.String(obj.ContentType),
		Metadata:             obj.Metadata,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", classifyError(err, "put")
	}
	return key, nil
}

// Get downloads the object stored under the full key returned by Put.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyError(err, "get")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classifyError(err, "get")
	}
	return data, nil
}

func classifyError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrOperationTimeout, op)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrOperationCanceled, op)
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied":
			return fmt.Errorf("%w: %s", ErrAccessDenied, op)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return fmt.Errorf("%w: %s", ErrServiceUnavailable, op)
		case "NoSuchKey":
			return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
		case "NoSuchBucket":
			return ErrBucketNotFound
		default:
			return fmt.Errorf("%s failed (code: %s): %w", op, apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
