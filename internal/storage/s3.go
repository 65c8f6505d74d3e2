package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"account-portal/internal/domain"
)

// Options describes the bucket user content is written to.
type Options struct {
	Bucket string
	Region string
	// PublicBaseURL overrides the virtual-hosted S3 URL, e.g. for a CDN or an S3 compatible endpoint.
	PublicBaseURL string
}

// S3Service stores user content in Amazon S3 (or compatible APIs).
type S3Service struct {
	client    *s3.Client
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	opts      Options
}

func NewS3Service(client *s3.Client, opts Options) *S3Service {
	return &S3Service{
		client:    client,
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
		opts:      opts,
	}
}

func (s *S3Service) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if s.opts.Bucket == "" {
		return "", ErrNotConfigured
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.opts.Bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String(contentType),
		ACL:                  types.ObjectCannedACLPublicRead,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", describeError(s.opts.Bucket, "upload "+key, err)
	}
	return key, nil
}

func (s *S3Service) URLFor(contentType domain.ContentType, key string) string {
	return objectURL(s.opts, ObjectKey(contentType, key))
}

func (s *S3Service) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if s.opts.Bucket == "" {
		return nil, ErrNotConfigured
	}

	var objects []ObjectInfo
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
	}
	if strings.TrimSpace(prefix) != "" {
		input.Prefix = aws.String(prefix)
	}

	for {
		output, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, describeError(s.opts.Bucket, "list objects", err)
		}

		for _, obj := range output.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
			})
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}

	return objects, nil
}

func (s *S3Service) DeletePrefix(ctx context.Context, prefix string) error {
	if s.opts.Bucket == "" {
		return ErrNotConfigured
	}
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return fmt.Errorf("prefix is required")
	}

	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(trimmed),
	}

	for {
		output, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return describeError(s.opts.Bucket, "list objects for delete", err)
		}

		if len(output.Contents) > 0 {
			identifiers := make([]types.ObjectIdentifier, 0, len(output.Contents))
			for _, obj := range output.Contents {
				identifiers = append(identifiers, types.ObjectIdentifier{Key: obj.Key})
			}
			_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.opts.Bucket),
				Delete: &types.Delete{
					Objects: identifiers,
					Quiet:   aws.Bool(true),
				},
			})
			if err != nil {
				return describeError(s.opts.Bucket, "delete objects", err)
			}
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			break
		}
		listInput.ContinuationToken = output.NextContinuationToken
	}

	return nil
}

func (s *S3Service) PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	if s.opts.Bucket == "" {
		return "", ErrNotConfigured
	}
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", describeError(s.opts.Bucket, "presign upload", err)
	}
	return req.URL, nil
}

func (s *S3Service) PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.opts.Bucket == "" {
		return "", ErrNotConfigured
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", describeError(s.opts.Bucket, "presign download", err)
	}
	return req.URL, nil
}

var _ Service = (*S3Service)(nil)

func objectURL(opts Options, key string) string {
	segments := strings.Split(key, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	escaped := strings.Join(segments, "/")

	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/") + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", opts.Bucket, opts.Region, escaped)
}

// describeError turns well known S3 failures into readable messages, keeping the cause.
func describeError(bucket, op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied":
			return fmt.Errorf("%s: access denied, check credentials and bucket permissions: %w", op, err)
		case "NoSuchBucket":
			return fmt.Errorf("%s: bucket %q does not exist: %w", op, bucket, err)
		case "InvalidAccessKeyId":
			return fmt.Errorf("%s: invalid access key id: %w", op, err)
		case "SignatureDoesNotMatch":
			return fmt.Errorf("%s: invalid secret access key: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
