package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// multipartThreshold is the buffered size above which Put switches to the
// multipart upload manager.
const multipartThreshold = 4 * minPartSize

// Writer implements domain.BlobWriter using an S3-compatible backend.
type Writer struct {
	client *s3.Client
	bucket string
}

// NewWriter creates a Writer that uploads to the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Put uploads data to path. In-memory payloads larger than
// multipartThreshold, and readers of unknown length, go through the
// multipart upload manager.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if b, ok := data.(*bytes.Reader); ok && b.Size() <= multipartThreshold {
		_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(w.bucket),
			Key:         aws.String(path),
			Body:        b,
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("s3blob: put object %s: %w", path, err)
		}
		return nil
	}
	return w.PutMultipart(ctx, path, data, contentType, minPartSize)
}

// PutMultipart uploads data with the S3 upload manager, which splits the
// payload into parts of partSize bytes (clamped to the 5 MiB minimum) and
// uploads them concurrently.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BlobWriter = (*Writer)(nil)
