// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/gateway/minio"
	"github.com/satmihir/photocache/internal/gateway/s3"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "PHOTOCACHE_"

// Remote asset backends.
const (
	BackendMemory = "memory"
	BackendHTTP   = "http"
	BackendS3     = "s3"
	BackendMinio  = "minio"
)

// Record stores.
const (
	RecordsMemory = "memory"
	RecordsSQLite = "sqlite"
)

type Config struct {
	Listen          string        `env:"LISTEN"           envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS"     envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	CacheDir          string `env:"CACHE_DIR"          envDefault:"./data/images"`
	ThumbnailCapacity int    `env:"THUMBNAIL_CAPACITY" envDefault:"200"`
	FullImageCapacity int    `env:"FULL_IMAGE_CAPACITY" envDefault:"30"`
	MaxDimension      int    `env:"MAX_DIMENSION"      envDefault:"1600"`
	JPEGQuality       int    `env:"JPEG_QUALITY"       envDefault:"80"`

	Backend string `env:"BACKEND" envDefault:"memory"`
	// AssetServers are the base URLs of the asset servers for the http
	// backend. With more than one, each stamp's blobs are sharded to one
	// server by hashing its ID with AssetShardSalt.
	AssetServers   []string `env:"ASSET_SERVERS" envSeparator:","`
	AssetShardSalt string   `env:"ASSET_SHARD_SALT"`
	// AssetListen, when set, also serves the configured backend through the
	// asset HTTP protocol on this address.
	AssetListen string `env:"ASSET_LISTEN"`

	S3    S3Config    `envPrefix:"S3_"`
	Minio MinioConfig `envPrefix:"MINIO_"`

	Records    string `env:"RECORDS"     envDefault:"memory"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/photos.db"`
}

type S3Config struct {
	Bucket       string `env:"BUCKET"`
	Prefix       string `env:"PREFIX"`
	Region       string `env:"REGION"`
	Endpoint     string `env:"ENDPOINT"`
	UsePathStyle bool   `env:"USE_PATH_STYLE"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
	Prefix    string `env:"PREFIX"`
}

// Load reads envFile, if it exists, into the environment and then parses
// the configuration. Variables already set take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the components would otherwise reject late.
func (c Config) Validate() error {
	var errs []error
	if c.ThumbnailCapacity < 1 || c.FullImageCapacity < 1 {
		errs = append(errs, errors.New("cache capacities must be at least 1"))
	}
	if c.MaxDimension < 1 {
		errs = append(errs, errors.New("max dimension must be positive"))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality %d out of range 1-100", c.JPEGQuality))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.AssetListen != "" && c.Backend == BackendHTTP {
		errs = append(errs, errors.New("ASSET_LISTEN cannot serve the http backend"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	switch c.Backend {
	case BackendMemory:
	case BackendHTTP:
		if len(c.AssetServers) == 0 {
			errs = append(errs, errors.New("http backend requires ASSET_SERVERS"))
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 backend requires S3_BUCKET"))
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio backend requires MINIO_ENDPOINT and MINIO_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.Records {
	case RecordsMemory:
	case RecordsSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite records require SQLITE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown record store %q", c.Records))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the process logger.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func (c S3Config) Gateway() s3.Config {
	return s3.Config{
		Bucket:       c.Bucket,
		Prefix:       c.Prefix,
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		UsePathStyle: c.UsePathStyle,
	}
}

func (c MinioConfig) Gateway() minio.Config {
	return minio.Config{
		Endpoint:  c.Endpoint,
		Bucket:    c.Bucket,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Prefix:    c.Prefix,
	}
}
