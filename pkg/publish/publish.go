// Package publish delivers the Neo4j JSON export of a finished store to a
// local file or an S3 compatible bucket.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const exportContentType = "application/json"

// Publisher stores one export document and returns where it went.
type Publisher interface {
	Publish(ctx context.Context, r io.Reader) (string, error)
}

// FilePublisher writes to a local path, creating parent directories.
type FilePublisher struct {
	Path string
}

// Publish implements Publisher. The file is written next to its final
// name and renamed into place.
func (p *FilePublisher) Publish(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir := filepath.Dir(p.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create export dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.Path), filepath.Base(p.Path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.Path); err != nil {
		return "", fmt.Errorf("move export file: %w", err)
	}
	return p.Path, nil
}

// S3Config holds the S3 target parameters. Empty credentials fall back to
// the default AWS credential chain.
type S3Config struct {
	Region          string
	Bucket          string
	Key             string
	Endpoint        string // optional, e.g. MinIO
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool

	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
}

// S3Publisher uploads to one bucket key.
type S3Publisher struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3 creates an S3 publisher from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("s3 key required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &S3Publisher{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

// Publish implements Publisher.
func (p *S3Publisher) Publish(ctx context.Context, r io.Reader) (string, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read export: %w", err)
		}
		body = bytes.NewReader(data)
	}

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.key),
		Body:        body,
		ContentType: aws.String(exportContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.bucket, p.key, err)
	}
	return "s3://" + p.bucket + "/" + p.key, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(target string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(target, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// ForTarget returns an S3 publisher for s3:// targets and a file publisher
// for everything else. Bucket and Key in base are replaced from target.
func ForTarget(ctx context.Context, target string, base S3Config) (Publisher, error) {
	if strings.HasPrefix(target, "s3://") {
		bucket, key, ok := ParseS3URL(target)
		if !ok {
			return nil, fmt.Errorf("invalid s3 target %q, want s3://bucket/key", target)
		}
		base.Bucket, base.Key = bucket, key
		return NewS3(ctx, base)
	}
	if target == "" {
		return nil, fmt.Errorf("export target required")
	}
	return &FilePublisher{Path: target}, nil
}
