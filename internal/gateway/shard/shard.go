// Package shard spreads image blobs over several asset backends. Every blob
// under one destination hint, i.e. every photo of one stamp, lands on the
// same backend, chosen by rendezvous hashing on the hint.
package shard

import (
	"context"
	"errors"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/gateway"
)

var ErrNoBackends = errors.New("shard: no backends")

// Gateway implements gateway.AssetGateway over a Router.
type Gateway struct {
	router *Router
	// fallbacks is how many runner-up backends Download tries after a miss,
	// to find blobs written before the backend set changed.
	fallbacks int
	log       logrus.FieldLogger
}

var _ gateway.AssetGateway = (*Gateway)(nil)

// New creates a Gateway. salt changes the key placement; keep it stable
// for the life of the data.
func New(backends []*Backend, salt []byte, log logrus.FieldLogger) (*Gateway, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{
		router:    NewRouter(backends, salt),
		fallbacks: 1,
		log:       log.WithField("component", "shard"),
	}, nil
}

// Router exposes the router, e.g. to change the backend set.
func (g *Gateway) Router() *Router {
	return g.router
}

func (g *Gateway) Upload(ctx context.Context, data []byte, destinationHint string) (string, error) {
	b := g.router.Rank(routingKey(destinationHint), 1)[0]
	return b.Gateway.Upload(ctx, data, destinationHint)
}

// Download reads from the owning backend, then from the runner-ups when
// the owner reports the blob missing.
func (g *Gateway) Download(ctx context.Context, storagePath string) ([]byte, error) {
	var err error
	for i, b := range g.router.Rank(routingKey(path.Dir(storagePath)), 1+g.fallbacks) {
		var data []byte
		data, err = b.Gateway.Download(ctx, storagePath)
		if err == nil {
			if i > 0 {
				g.log.WithFields(logrus.Fields{"path": storagePath, "backend": b.Name}).Info("Blob found on fallback backend")
			}
			return data, nil
		}
		if !errors.Is(err, gateway.ErrNotFound) {
			return nil, err
		}
	}
	return nil, err
}

func (g *Gateway) Delete(ctx context.Context, storagePath string) error {
	b := g.router.Rank(routingKey(path.Dir(storagePath)), 1)[0]
	return b.Gateway.Delete(ctx, storagePath)
}

// routingKey normalises a hint the way storage paths are built from it, so
// an upload and the later reads of its path agree.
func routingKey(hint string) string {
	dir := path.Clean("/" + hint)
	if dir == "/" {
		return ""
	}
	return dir[1:]
}
