package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/config"
	"github.com/satmihir/photocache/internal/diskstore"
	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/gateway/httpasset"
	"github.com/satmihir/photocache/internal/gateway/memory"
	"github.com/satmihir/photocache/internal/gateway/minio"
	"github.com/satmihir/photocache/internal/gateway/s3"
	"github.com/satmihir/photocache/internal/gateway/shard"
	"github.com/satmihir/photocache/internal/imagecache"
	"github.com/satmihir/photocache/internal/images"
	"github.com/satmihir/photocache/internal/photos"
	"github.com/satmihir/photocache/internal/records"
	"github.com/satmihir/photocache/internal/server"
)

func main() {
	envFile := flag.String("env", ".env", "Optional .env file to load before reading the environment.")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := cfg.Logger()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("photocache exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	disk, err := diskstore.Open(cfg.CacheDir, log)
	if err != nil {
		return err
	}

	remote, err := newRemote(ctx, cfg, log)
	if err != nil {
		return err
	}

	store, closeStore, err := newRecordStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	memCache := imagecache.New(imagecache.Config{
		ThumbnailCapacity: cfg.ThumbnailCapacity,
		FullImageCapacity: cfg.FullImageCapacity,
	}, log)

	imgCfg := images.DefaultConfig()
	imgCfg.MaxDimension = cfg.MaxDimension
	imgCfg.Quality = cfg.JPEGQuality
	imgs := images.New(imgCfg, memCache, disk, remote, log)
	defer imgs.Close()

	collections := photos.NewManager(photos.DefaultConfig(), imgs, store, log)
	defer collections.Close()

	go watchMemoryWarnings(ctx, imgs, log)

	var assets *httpasset.Server
	if cfg.AssetListen != "" {
		assets = httpasset.NewServer(cfg.AssetListen, remote, log)
		go func() {
			log.WithField("addr", cfg.AssetListen).Info("Starting asset server")
			if err := assets.Start(); err != nil {
				log.WithError(err).Error("Asset server stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(imgs, collections, cfg.CORSOrigins, log).Router(),
	}
	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Listen, "backend": cfg.Backend, "records": cfg.Records}).Info("Starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	if assets != nil {
		if err := assets.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("asset server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newRemote(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (gateway.AssetGateway, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		if len(cfg.AssetServers) == 1 {
			return httpasset.NewClient(cfg.AssetServers[0]), nil
		}
		backends := make([]*shard.Backend, len(cfg.AssetServers))
		for i, addr := range cfg.AssetServers {
			backends[i] = shard.NewBackend(addr, httpasset.NewClient(addr))
		}
		return shard.New(backends, []byte(cfg.AssetShardSalt), log)
	case config.BackendS3:
		return s3.New(ctx, cfg.S3.Gateway(), log)
	case config.BackendMinio:
		return minio.New(cfg.Minio.Gateway(), log)
	default:
		log.Warn("Using in-memory asset backend, uploads are lost on exit")
		return memory.NewAssetGateway(), nil
	}
}

func newRecordStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (gateway.RecordStore, func(), error) {
	if cfg.Records != config.RecordsSQLite {
		return records.NewMemoryStore(), func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create record store dir: %w", err)
	}
	store, err := records.OpenSQLite(ctx, cfg.SQLitePath, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close record store")
		}
	}, nil
}

// watchMemoryWarnings treats SIGUSR1 as an OS low-memory notification.
func watchMemoryWarnings(ctx context.Context, imgs *images.Manager, log logrus.FieldLogger) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGUSR1)
	defer signal.Stop(sigc)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigc:
			imgs.HandleMemoryWarning()
			log.WithField("stats", imgs.Stats()).Info("Memory warning, full-image cache cleared")
		}
	}
}
