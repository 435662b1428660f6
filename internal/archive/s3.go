// Package archive uploads produced model and training-result artifacts to
// object storage so they survive working-directory cleanup.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader copies artifact directories to s3://<bucket>/<prefix>/...
type Uploader struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewUploader creates an Uploader. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewUploader(ctx context.Context, bucket, prefix string) (*Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Uploader{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveDir walks dir and uploads every regular file under
// <prefix>/<keyPrefix>/<relative path>. Returns the number of files uploaded.
func (u *Uploader) ArchiveDir(ctx context.Context, dir, keyPrefix string) (int, error) {
	uploaded := 0
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		defer f.Close()

		key := path.Join(u.prefix, keyPrefix, filepath.ToSlash(rel))
		_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("archive %s: %w", dir, err)
	}
	return uploaded, nil
}
