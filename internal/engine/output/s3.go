package output

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher copies finished run artifacts to an S3 bucket.
type Publisher struct {
	Bucket string
	Region string
	Prefix string

	client objectPutter
}

// NewPublisher loads the default AWS credential chain for region.
func NewPublisher(ctx context.Context, bucket, region, prefix string) (*Publisher, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Publisher{
		Bucket: bucket,
		Region: region,
		Prefix: prefix,
		client: s3.NewFromConfig(cfg),
	}, nil
}

// Key returns the object key for file under runID.
func (p *Publisher) Key(runID, file string) string {
	return path.Join(p.Prefix, runID, filepath.Base(file))
}

// Upload puts the local file at filePath and returns its s3:// URI.
func (p *Publisher) Upload(ctx context.Context, runID, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filePath, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := p.Key(runID, filePath)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", p.Bucket, key), nil
}
