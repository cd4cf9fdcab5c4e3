package msgstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// maxArchiveBytes bounds a single archived rejection on read.
const maxArchiveBytes = 4 << 20

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps archived rejections as JSON objects in a bucket, one object
// per rejected item under an optional prefix such as "rejections/".
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

func NewS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig builds the archive from archive.s3_* settings.
// Setting s3_endpoint switches to path-style addressing for MinIO and
// LocalStack.
func NewS3StoreFromConfig(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("msgstore: s3_bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("msgstore: load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		endpoint := cfg.S3Endpoint
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3Store(s3.NewFromConfig(awsCfg, clientOpts...), cfg.S3Bucket, cfg.S3Prefix), nil
}

func (s *S3Store) objectKey(key string) (*string, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	return aws.String(s.prefix + key), nil
}

// Put archives one rejection document.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         k,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("msgstore: s3 put %s: %w", key, err)
	}
	return nil
}

// Get returns an archived rejection, or ErrNotFound.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    k,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgstore: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("msgstore: s3 read %s: %w", key, err)
	}
	return data, nil
}

// Delete drops an archived rejection once an operator has handled it.
// Deleting a missing key succeeds.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    k,
	}); err != nil {
		return fmt.Errorf("msgstore: s3 delete %s: %w", key, err)
	}
	return nil
}
