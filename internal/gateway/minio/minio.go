// Package minio stores image blobs on a MinIO or other S3-compatible server.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/gateway"
)

// Config holds MinIO connection settings.
type Config struct {
	// Endpoint is the server address (e.g., "localhost:9000")
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Prefix is an optional prefix for all object keys
	Prefix string

	// Client is an optional pre-configured client. If provided,
	// Endpoint/AccessKey/SecretKey are ignored.
	Client *minio.Client
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("access and secret keys are required when client is not provided")
	}
	return nil
}

// objectAPI narrows *minio.Client to what the gateway needs.
type objectAPI interface {
	put(ctx context.Context, bucket, key string, data []byte) error
	get(ctx context.Context, bucket, key string) ([]byte, error)
	remove(ctx context.Context, bucket, key string) error
}

type clientAdapter struct {
	client *minio.Client
}

func (a clientAdapter) put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	return err
}

func (a clientAdapter) get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	// Errors such as NoSuchKey surface on the first read.
	return io.ReadAll(obj)
}

func (a clientAdapter) remove(ctx context.Context, bucket, key string) error {
	return a.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// Gateway implements gateway.AssetGateway on MinIO.
type Gateway struct {
	api    objectAPI
	bucket string
	prefix string
	log    logrus.FieldLogger
}

var _ gateway.AssetGateway = (*Gateway)(nil)

// New connects to the configured server.
func New(cfg Config, log logrus.FieldLogger) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: creating client: %w", err)
		}
	}
	return newGateway(clientAdapter{client: client}, cfg, log), nil
}

func newGateway(api objectAPI, cfg Config, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{
		api:    api,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.WithFields(logrus.Fields{"component": "minio", "bucket": cfg.Bucket}),
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
	if err := g.api.put(ctx, g.bucket, g.key(storagePath), data); err != nil {
		return "", fmt.Errorf("minio: uploading %s: %w", storagePath, err)
	}
	g.log.WithFields(logrus.Fields{"path": storagePath, "bytes": len(data)}).Debug("Uploaded image")
	return storagePath, nil
}

func (g *Gateway) Download(ctx context.Context, storagePath string) ([]byte, error) {
	if err := gateway.ValidatePath(storagePath); err != nil {
		return nil, err
	}
	data, err := g.api.get(ctx, g.bucket, g.key(storagePath))
	if err != nil {
		if isNotFound(err) {
			return nil, gateway.ErrNotFound
		}
		return nil, fmt.Errorf("minio: downloading %s: %w", storagePath, err)
	}
	return data, nil
}

func (g *Gateway) Delete(ctx context.Context, storagePath string) error {
	if err := gateway.ValidatePath(storagePath); err != nil {
		return err
	}
	if err := g.api.remove(ctx, g.bucket, g.key(storagePath)); err != nil {
		return fmt.Errorf("minio: deleting %s: %w", storagePath, err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
