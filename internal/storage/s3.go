package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/models"
)

// S3Store is the S3-backed object store gateway. All operations are
// synchronous; callers treat one attempt as definitive.
type S3Store struct {
	client s3iface.S3API
	logger arbor.ILogger
}

// NewS3Store builds a gateway on a fresh session for the given region.
func NewS3Store(region string, logger arbor.ILogger) (*S3Store, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Store{client: s3.New(sess), logger: logger}, nil
}

// NewS3StoreWithClient wires an existing client, used by tests.
func NewS3StoreWithClient(client s3iface.S3API, logger arbor.ILogger) *S3Store {
	return &S3Store{client: client, logger: logger}
}

func (s *S3Store) GetBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("get %s/%s: %w", bucket, key, models.ErrNoSuchKey)
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

func (s *S3Store) GetString(ctx context.Context, bucket, key string) (string, error) {
	body, err := s.GetBytes(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *S3Store) PutBytes(ctx context.Context, bucket, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	s.logger.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(body)).Msg("Put object")
	return nil
}

// Exists maps both 404 and 403 HEAD responses to false. Buckets in the
// legacy deployment deny HEAD on absent keys instead of returning 404.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		switch reqErr.StatusCode() {
		case 404:
			return false, nil
		case 403:
			s.logger.Warn().
				Str("job_tag", models.JobTagFromObjectKey(key)).
				Str("key", key).
				Int("status", reqErr.StatusCode()).
				Msg("Received forbidden response on object HEAD")
			return false, nil
		}
	}
	return false, fmt.Errorf("failed to head object %s/%s: %w", bucket, key, err)
}

func (s *S3Store) Copy(ctx context.Context, srcBucket, srcKey, destKey, destBucket string) error {
	if destBucket == "" {
		destBucket = srcBucket
	}
	_, err := s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		CopySource: aws.String(fmt.Sprintf("%s/%s", srcBucket, srcKey)),
		Bucket:     aws.String(destBucket),
		Key:        aws.String(destKey),
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s/%s to %s/%s: %w", srcBucket, srcKey, destBucket, destKey, err)
	}
	return nil
}

func (s *S3Store) DownloadFile(ctx context.Context, bucket, key, path string) error {
	body, err := s.GetBytes(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *S3Store) UploadFile(ctx context.Context, path, bucket, key string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.PutBytes(ctx, bucket, key, body)
}

// PresignPut returns a URL allowing a single PUT of the object.
func (s *S3Store) PresignPut(bucket, key string, expirySeconds int64) (string, error) {
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(time.Duration(expirySeconds) * time.Second)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", bucket, key, err)
	}
	return url, nil
}
