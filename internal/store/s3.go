package store

import (
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"wikistat/internal/domain"
)

// S3 is the subset of minio.Client used by the publisher.
//
// Keeping it small means tests only have to fake the calls we make; see
// fakeS3 in store_test.go.
type S3 interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Options configure access to S3-compatible object storage.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// NewS3Client sets up a client for accessing S3-compatible object storage.
func NewS3Client(opts S3Options) (*minio.Client, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client for %s: %w", opts.Endpoint, err)
	}
	client.SetAppInfo("wikistat", "0.1")
	return client, nil
}

// Publisher uploads Parquet files to a bucket under a fixed prefix.
type Publisher struct {
	client S3
	bucket string
	prefix string
}

// NewPublisher returns a Publisher writing to bucket/prefix.
func NewPublisher(client S3, bucket, prefix string) *Publisher {
	return &Publisher{client: client, bucket: bucket, prefix: prefix}
}

// Check verifies that the target bucket exists.
func (p *Publisher) Check(ctx context.Context) error {
	ok, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %q: %w", p.bucket, err)
	}
	if !ok {
		return fmt.Errorf("storage bucket %q does not exist", p.bucket)
	}
	return nil
}

// ObjectName returns the object key the file for id is published under.
func (p *Publisher) ObjectName(id domain.FileID) (string, error) {
	rel, err := RelativePath(id)
	if err != nil {
		return "", err
	}
	return path.Join(p.prefix, rel), nil
}

// Publish uploads the local Parquet file for id and returns its object key.
// Uploading the same id again replaces the object.
func (p *Publisher) Publish(ctx context.Context, id domain.FileID, localPath string) (string, error) {
	name, err := p.ObjectName(id)
	if err != nil {
		return "", err
	}
	opts := minio.PutObjectOptions{ContentType: "application/vnd.apache.parquet"}
	if _, err := p.client.FPutObject(ctx, p.bucket, name, localPath, opts); err != nil {
		return "", fmt.Errorf("uploading %s to %s/%s: %w", localPath, p.bucket, name, err)
	}
	return name, nil
}
