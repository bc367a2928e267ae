// Package s3 stores image blobs in an Amazon S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/gateway"
)

// objectAPI is the subset of *s3.Client the gateway uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config selects the bucket and, for S3-compatible services, the endpoint.
type Config struct {
	Bucket string
	// Prefix namespaces every object key.
	Prefix string
	Region string
	// Endpoint overrides the AWS endpoint (e.g. a local S3 emulator).
	Endpoint     string
	UsePathStyle bool
}

// Gateway implements gateway.AssetGateway on S3.
type Gateway struct {
	client objectAPI
	bucket string
	prefix string
	log    logrus.FieldLogger
}

var _ gateway.AssetGateway = (*Gateway)(nil)

// New loads the default AWS credential chain and returns a Gateway.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Gateway, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newGateway(client, cfg, log), nil
}

func newGateway(client objectAPI, cfg Config, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.WithFields(logrus.Fields{"component": "s3", "bucket": cfg.Bucket}),
	}
}

func (g *Gateway) key(storagePath string) string {
	if g.prefix == "" {
		return storagePath
	}
	return path.Join(g.prefix, storagePath)
}

func (g *Gateway) Upload(ctx context.Context, data []byte, destinationHint string) (string, error) {
	storagePath, err := gateway.NewStoragePath(destinationHint, "")
	if err != nil {
		return "", err
	}

	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(g.key(storagePath)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("s3: uploading %s: %w", storagePath, err)
	}

	g.log.WithFields(logrus.Fields{"path": storagePath, "bytes": len(data)}).Debug("Uploaded image")
	return storagePath, nil
}

func (g *Gateway) Download(ctx context.Context, storagePath string) ([]byte, error) {
	if err := gateway.ValidatePath(storagePath); err != nil {
		return nil, err
	}

	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(storagePath)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, gateway.ErrNotFound
		}
		return nil, fmt.Errorf("s3: downloading %s: %w", storagePath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: reading %s: %w", storagePath, err)
	}
	return data, nil
}

func (g *Gateway) Delete(ctx context.Context, storagePath string) error {
	if err := gateway.ValidatePath(storagePath); err != nil {
		return err
	}

	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(storagePath)),
	})
	if err != nil {
		return fmt.Errorf("s3: deleting %s: %w", storagePath, err)
	}
	return nil
}
