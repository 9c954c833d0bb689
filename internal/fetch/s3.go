package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/leapstack-labs/roadlens/internal/location"
)

// S3 reads the published site from a bucket prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 fetcher using the default credential chain.
func NewS3(ctx context.Context, bucket, prefix string, cfg S3Config) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, bucket, prefix), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client *s3.Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key maps a candidate path to an object key.
func (s *S3) Key(candidate string) string {
	key := strings.TrimPrefix(location.Normalize(candidate), "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Locate implements Locator.
func (s *S3) Locate(candidate string) string {
	return "s3://" + s.bucket + "/" + s.Key(candidate)
}

// Fetch implements Fetcher.
func (s *S3) Fetch(ctx context.Context, candidate string) ([]byte, error) {
	if location.IsAbsoluteURL(candidate) {
		return nil, fmt.Errorf("s3 origin cannot fetch %s", candidate)
	}
	key := s.Key(candidate)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		ResponseCacheControl: aws.String("no-cache"),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var re *awshttp.ResponseError
		if errors.As(err, &nsk) || (errors.As(err, &re) && re.HTTPStatusCode() == 404) {
			return nil, &StatusError{URL: "s3://" + s.bucket + "/" + key, StatusCode: 404}
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}
