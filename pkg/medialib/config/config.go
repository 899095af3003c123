// Package config assembles a medialib.Service from declarative settings,
// typically loaded from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mediaplan/medialib/pkg/medialib"
	memoryrepo "github.com/mediaplan/medialib/pkg/medialib/repo/memory"
	mongorepo "github.com/mediaplan/medialib/pkg/medialib/repo/mongo"
	fsstorage "github.com/mediaplan/medialib/pkg/medialib/storage/fs"
	gridfsstorage "github.com/mediaplan/medialib/pkg/medialib/storage/gridfs"
	"github.com/mediaplan/medialib/pkg/medialib/storage/httpurl"
	memorystorage "github.com/mediaplan/medialib/pkg/medialib/storage/memory"
	s3storage "github.com/mediaplan/medialib/pkg/medialib/storage/s3"
	"github.com/mediaplan/medialib/pkg/medialib/thumbnail"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8080",
		Environment:   "development",
		DatabaseType:  "memory",
		DatabaseName:  "medialib",
		StorageType:   "memory",
		PublicBaseURL: "",
		Thumbnails: ThumbnailConfig{
			Edge:       thumbnail.DefaultEdge,
			Quality:    thumbnail.DefaultQuality,
			Workers:    4,
			QueueDepth: 64,
		},
	}
}

// ServerConfig represents server configuration for the media library service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseType string // "memory", "mongo"
	DatabaseURL  string // Mongo connection string
	DatabaseName string

	// Storage configuration for original bytes
	StorageType string // "memory", "fs", "gridfs", "s3"
	FSBaseDir   string
	S3          s3storage.Config

	// PublicBaseURL is the origin assets and thumbnails are served from.
	PublicBaseURL string

	Thumbnails ThumbnailConfig
}

// ThumbnailConfig controls the generation engine and its worker pool.
type ThumbnailConfig struct {
	Edge       int
	Quality    int
	Workers    int
	QueueDepth int
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "mongo":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using mongo")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required for fs storage")
		}
	case "gridfs":
		if c.DatabaseType != "mongo" {
			return errors.New("gridfs storage requires the mongo database")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	return nil
}

// Components are the assembled collaborators a ServerConfig describes. The
// HTTP server wraps them in a Service; the batch tooling wires them into a
// detector and driver directly.
type Components struct {
	Repository   medialib.Repository
	Descriptions medialib.DescriptionStore
	Stores       map[medialib.StorageMode]medialib.BlobStore
	DefaultMode  medialib.StorageMode
}

// BuildComponents connects to the configured backends.
func (c *ServerConfig) BuildComponents(ctx context.Context) (*Components, error) {
	components := &Components{
		Stores: make(map[medialib.StorageMode]medialib.BlobStore),
	}

	var db *mongo.Database
	switch c.DatabaseType {
	case "memory":
		components.Repository = memoryrepo.New()
		components.Descriptions = memoryrepo.NewDescriptionStore()
	case "mongo":
		client, err := connectMongo(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db = client.Database(c.DatabaseName)
		components.Repository = mongorepo.New(db)
		components.Descriptions = mongorepo.NewDescriptionStore(db)
	}

	mode, store, err := c.buildStorage(db)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}
	components.DefaultMode = mode
	components.Stores[mode] = store
	components.Stores[medialib.StorageModeExternal] = httpurl.New("")

	return components, nil
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (medialib.Service, error) {
	components, err := c.BuildComponents(ctx)
	if err != nil {
		return nil, err
	}

	options := []medialib.Option{
		medialib.WithRepository(components.Repository),
		medialib.WithDescriptionStore(components.Descriptions),
		medialib.WithDefaultStorageMode(components.DefaultMode),
	}
	for mode, store := range components.Stores {
		options = append(options, medialib.WithBlobStore(mode, store))
	}

	options = append(options,
		medialib.WithThumbnailer(thumbnail.NewGenerator(thumbnail.Options{
			Edge:    c.Thumbnails.Edge,
			Quality: c.Thumbnails.Quality,
		})),
		medialib.WithWorkers(c.Thumbnails.Workers),
		medialib.WithQueueDepth(c.Thumbnails.QueueDepth),
		medialib.WithPublicBaseURL(c.PublicBaseURL),
	)
	if logger != nil {
		options = append(options, medialib.WithLogger(logger))
	}

	return medialib.New(options...)
}

// buildStorage creates the BlobStore for original bytes and reports the
// storage mode new uploads are created with.
func (c *ServerConfig) buildStorage(db *mongo.Database) (medialib.StorageMode, medialib.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return medialib.StorageModeFile, memorystorage.New(), nil

	case "fs":
		store, err := fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
		if err != nil {
			return "", nil, err
		}
		return medialib.StorageModeFile, store, nil

	case "gridfs":
		if db == nil {
			return "", nil, errors.New("gridfs storage requires the mongo database")
		}
		store, err := gridfsstorage.New(db, "media")
		if err != nil {
			return "", nil, err
		}
		return medialib.StorageModeBlob, store, nil

	case "s3":
		store, err := s3storage.New(c.S3)
		if err != nil {
			return "", nil, err
		}
		return medialib.StorageModeFile, store, nil

	default:
		return "", nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return client, nil
}
