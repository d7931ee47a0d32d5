// Package s3util provides the S3 helpers for the media bucket: presigned
// upload and download URLs, and object key layout for project photos and
// worker results.
package s3util

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// Presigned URL lifetimes. Uploads get a short window; downloads last
// long enough for a client session without handing out durable links.
const (
	UploadExpiry   = 15 * time.Minute
	DownloadExpiry = 1 * time.Hour
)

// PhotoKey returns the object key for an uploaded building photo.
func PhotoKey(projectID, imageID, fileName string) string {
	return fmt.Sprintf("projects/%s/images/%s/%s", projectID, imageID, fileName)
}

// PresignUpload creates a presigned PUT URL the browser uses to upload a
// photo directly to the media bucket.
func PresignUpload(ctx context.Context, presigner *s3.PresignClient, bucket, key, contentType string) (string, error) {
	result, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = UploadExpiry
	})
	if err != nil {
		return "", fmt.Errorf("presign PutObject: %w", err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Presigned upload URL generated")
	return result.URL, nil
}

// PresignDownload creates a presigned GET URL for a stored object
// (original photo, segmentation mask, or rendered result).
func PresignDownload(ctx context.Context, presigner *s3.PresignClient, bucket, key string) (string, error) {
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = DownloadExpiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}

// TagObject applies the Project cost-allocation tag to an existing S3
// object. Browser-uploaded files cannot be tagged at creation time
// because presigned PUT URLs do not carry tagging.
func TagObject(ctx context.Context, client *s3.Client, bucket, key string) error {
	_, err := client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: &bucket,
		Key:    &key,
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{
				{Key: aws.String("Project"), Value: aws.String("restyle")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("PutObjectTagging: %w", err)
	}
	return nil
}
