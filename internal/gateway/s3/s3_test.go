package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satmihir/photocache/internal/gateway"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestGateway(objects *fakeObjects) *Gateway {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return newGateway(objects, Config{Bucket: "photos", Prefix: "v1"}, log)
}

func TestGateway_UploadDownloadDelete(t *testing.T) {
	objects := newFakeObjects()
	g := newTestGateway(objects)
	ctx := context.Background()

	storagePath, err := g.Upload(ctx, []byte("jpeg"), "stamps/abc")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(storagePath, "stamps/abc/"))
	assert.Contains(t, objects.objects, "photos/v1/"+storagePath)

	data, err := g.Download(ctx, storagePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	require.NoError(t, g.Delete(ctx, storagePath))
	_, err = g.Download(ctx, storagePath)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestGateway_UploadError(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("throttled")
	g := newTestGateway(objects)

	_, err := g.Upload(context.Background(), []byte("x"), "stamps/abc")
	assert.ErrorContains(t, err, "throttled")
}

func TestGateway_RejectsInvalidPath(t *testing.T) {
	g := newTestGateway(newFakeObjects())

	_, err := g.Download(context.Background(), "../secret")
	assert.ErrorIs(t, err, gateway.ErrInvalidPath)
	assert.ErrorIs(t, g.Delete(context.Background(), ""), gateway.ErrInvalidPath)
}
