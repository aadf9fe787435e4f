package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type Config struct {
	// S3-compatible storage (minio works as well)
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// Base URL under which uploaded objects are publicly reachable
	PublicBaseURL string
}

// Store keeps profile images in an S3 bucket
type Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("error while loading s3 config. Err: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Upload puts the object under a random key with the given prefix
// and returns its public URL. File extension is kept so browsers can
// sniff less.
func (s *Store) Upload(ctx context.Context, prefix string, filename string, contentType string, body io.Reader) (string, error) {
	key := fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), path.Ext(filename))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("error while uploading %q. Err: %w", key, err)
	}

	return s.publicBaseURL + "/" + key, nil
}
