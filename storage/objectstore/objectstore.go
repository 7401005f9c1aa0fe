// Package objectstore provides an S3-compatible object storage backend for
// ArtifactPointer payloads too large to inline (parsed-document bodies,
// generated workflow exports). It is grounded on the S3 client/uploader
// wiring used by the pack's storage package, trimmed to the single
// put/get/delete surface this system needs.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

// Config configures the S3-compatible backend. Endpoint and UsePathStyle are
// set for MinIO or other non-AWS S3-compatible services; leave them empty to
// talk to real AWS S3.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	AccessKey    string
	SecretKey    string

	// InlineThreshold is the byte size under which callers should keep a
	// payload inline on the ArtifactPointer rather than calling Put.
	InlineThreshold int64
}

// Store wraps an s3.Client and an upload manager for the moderate-size
// documents and exports this system handles; downloads call the client's
// GetObject directly.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	inlineThreshold int64
}

// New builds a Store from cfg, resolving credentials the same way as the
// rest of the AWS SDK v2 stack (static credentials if supplied, otherwise
// the default provider chain — environment, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Store, error) {
	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, core.NewError("objectstore.new", core.ErrStorageFailed, "failed to load aws config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	inlineThreshold := cfg.InlineThreshold
	if inlineThreshold == 0 {
		inlineThreshold = 8192
	}

	return &Store{
		client:          client,
		uploader:        manager.NewUploader(client),
		bucket:          cfg.Bucket,
		inlineThreshold: inlineThreshold,
	}, nil
}

// ExportKey builds the key layout used for generated workflow artifacts:
// exports/{workflow-name}/{YYYY}/{MM}/{DD}/{runid}_{timestamp}_{filename}.
func ExportKey(workflowName, runID, filename string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%04d/%02d/%02d/%s_%d_%s",
		workflowName, at.Year(), at.Month(), at.Day(), runID, at.Unix(), filename)
}

// Put uploads data under key and returns an ArtifactPointer referencing it.
// Callers should prefer keeping payloads under the inline threshold inline on
// the record instead of calling Put.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (domain.ArtifactPointer, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.ArtifactPointer{}, core.NewError("objectstore.put", core.ErrStorageFailed, "upload failed", err)
	}
	return domain.ArtifactPointer{
		Backend:     "s3",
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Get downloads the object referenced by an ArtifactPointer, or returns the
// inline payload directly if the pointer carries one.
func (s *Store) Get(ctx context.Context, ptr domain.ArtifactPointer) ([]byte, error) {
	if ptr.IsInline() {
		return ptr.Inline, nil
	}
	if ptr.Backend != "s3" {
		return nil, core.NewError("objectstore.get", core.ErrInvalidInput, fmt.Sprintf("unsupported backend %q", ptr.Backend), nil)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ptr.Key),
	})
	if err != nil {
		return nil, core.NewError("objectstore.get", core.ErrStorageFailed, "download failed", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes the object backing an ArtifactPointer. A no-op for inline
// pointers since they carry no backend object.
func (s *Store) Delete(ctx context.Context, ptr domain.ArtifactPointer) error {
	if ptr.IsInline() || ptr.Key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ptr.Key),
	})
	if err != nil {
		return core.NewError("objectstore.delete", core.ErrStorageFailed, "delete failed", err)
	}
	return nil
}

// ShouldInline reports whether a payload of the given size should be stored
// inline on its owning record rather than uploaded to the object store.
func (s *Store) ShouldInline(size int64) bool {
	return size <= s.inlineThreshold
}
