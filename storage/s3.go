package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"drainage/table"
)

// Credentials is an optional static key pair. The zero value means ambient
// credential resolution (environment, shared config, instance role) is left
// to the SDK.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store reads one table root on S3.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an S3Store scoped to the table root named by tablePath.
func NewS3(ctx context.Context, tablePath, region string, creds Credentials) (*S3Store, error) {
	bucket, prefix, err := ParseTablePath(tablePath)
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// NewS3WithClient wraps an existing client, for callers that manage their own
// SDK configuration.
func NewS3WithClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	fullPrefix := s.scopedPrefix(prefix)

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error(prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          s.relativeKey(aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}

	return objects, nil
}

func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	fullKey := path.Join(s.prefix, key)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	return data, nil
}

// scopedPrefix joins the table prefix with a caller prefix, restoring the
// trailing slash path.Join strips. Without it a table rooted at "tbl" would
// also list sibling keys under "tbl2/".
func (s *S3Store) scopedPrefix(prefix string) string {
	full := path.Join(s.prefix, prefix)
	if full == "" || strings.HasSuffix(full, "/") {
		return full
	}
	return full + "/"
}

func (s *S3Store) relativeKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// classifyS3Error maps SDK failures onto the analysis error taxonomy.
func classifyS3Error(key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return table.WrapError(table.KindCancelled, key, err)
	}

	var noSuchKey *s3types.NoSuchKey
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return table.WrapError(table.KindNotFound, key, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return table.WrapError(table.KindNotFound, key, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return table.WrapError(table.KindAccessDenied, key, err)
		}
	}

	return table.WrapError(table.KindTransient, key, err)
}
