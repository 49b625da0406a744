package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mediagrab/api/internal/config"
)

// Mirror copies finished artifacts to object storage.
type Mirror interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// R2Mirror implements Mirror for Cloudflare R2 and other S3-compatible stores
type R2Mirror struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
	endpoint   string
}

// MirrorConfigured reports whether cfg carries enough to build a mirror.
func MirrorConfigured(cfg *config.R2Config) bool {
	return cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" && cfg.BucketName != "" &&
		(cfg.AccountID != "" || cfg.Endpoint != "")
}

// NewR2Mirror creates a new artifact mirror client
func NewR2Mirror(cfg *config.R2Config) (*R2Mirror, error) {
	if !MirrorConfigured(cfg) {
		return nil, fmt.Errorf("R2 configuration incomplete")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Mirror{
		s3Client:   s3Client,
		bucketName: cfg.BucketName,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		endpoint:   endpoint,
	}, nil
}

// Upload streams body to the bucket and returns the object's public URL
func (m *R2Mirror) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(m.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}

	if _, err := m.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s to mirror: %w", key, err)
	}

	return m.PublicURL(key), nil
}

// Delete removes a mirrored artifact
func (m *R2Mirror) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(key),
	}

	if _, err := m.s3Client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("failed to delete %s from mirror: %w", key, err)
	}
	return nil
}

// PublicURL returns the CDN URL for key, falling back to the bucket endpoint.
func (m *R2Mirror) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := strings.Join(segments, "/")
	if m.publicURL != "" {
		return m.publicURL + "/" + escaped
	}
	return m.endpoint + "/" + m.bucketName + "/" + escaped
}

// ArtifactKey is the object key used for a mirrored artifact.
func ArtifactKey(fileName string) string {
	return "downloads/" + fileName
}
