package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the flat environment mapping read by cleanenv.
type envConfig struct {
	Port        string `env:"PORT" env-default:""`
	Environment string `env:"ENVIRONMENT" env-default:""`

	DatabaseURL  string `env:"DATABASE_URL" env-default:""`
	DatabaseName string `env:"DATABASE_NAME" env-default:""`

	StorageType string `env:"STORAGE_TYPE" env-default:""`
	FSBaseDir   string `env:"FS_BASE_DIR" env-default:""`

	S3Region    string `env:"S3_REGION" env-default:""`
	S3Bucket    string `env:"S3_BUCKET" env-default:""`
	S3AccessKey string `env:"S3_ACCESS_KEY_ID" env-default:""`
	S3SecretKey string `env:"S3_SECRET_ACCESS_KEY" env-default:""`
	S3Endpoint  string `env:"S3_ENDPOINT" env-default:""`

	PublicBaseURL string `env:"PUBLIC_BASE_URL" env-default:""`

	ThumbnailEdge    int `env:"THUMBNAIL_EDGE" env-default:"0"`
	ThumbnailQuality int `env:"THUMBNAIL_QUALITY" env-default:"0"`
	ThumbnailWorkers int `env:"THUMBNAIL_WORKERS" env-default:"0"`
	ThumbnailQueue   int `env:"THUMBNAIL_QUEUE_DEPTH" env-default:"0"`
}

// WithEnv applies environment variable overrides.
//
// Environment variable mapping:
//
//	PORT                   - Server port (default: "8080")
//	ENVIRONMENT            - Runtime environment (default: "development")
//	DATABASE_URL           - Mongo connection string; empty means in-memory
//	DATABASE_NAME          - Mongo database name (default: "medialib")
//	STORAGE_TYPE           - "memory", "fs", "gridfs" or "s3"
//	FS_BASE_DIR            - Base directory for fs storage
//	S3_REGION, S3_BUCKET, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_ENDPOINT
//	PUBLIC_BASE_URL        - Origin assets and thumbnails are served from
//	THUMBNAIL_EDGE         - Square edge length in pixels
//	THUMBNAIL_QUALITY      - JPEG quality (1-100)
//	THUMBNAIL_WORKERS      - Background worker pool size
//	THUMBNAIL_QUEUE_DEPTH  - Background job queue capacity
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}

		if env.Port != "" {
			c.Port = env.Port
		}
		if env.Environment != "" {
			c.Environment = env.Environment
		}

		if env.DatabaseURL != "" {
			c.DatabaseType = "mongo"
			c.DatabaseURL = env.DatabaseURL
		}
		if env.DatabaseName != "" {
			c.DatabaseName = env.DatabaseName
		}

		if env.StorageType != "" {
			c.StorageType = env.StorageType
		}
		if env.FSBaseDir != "" {
			c.FSBaseDir = env.FSBaseDir
		}
		if env.S3Region != "" {
			c.S3.Region = env.S3Region
		}
		if env.S3Bucket != "" {
			c.S3.Bucket = env.S3Bucket
		}
		if env.S3AccessKey != "" {
			c.S3.AccessKeyID = env.S3AccessKey
		}
		if env.S3SecretKey != "" {
			c.S3.SecretAccessKey = env.S3SecretKey
		}
		if env.S3Endpoint != "" {
			c.S3.Endpoint = env.S3Endpoint
			c.S3.UsePathStyle = true
		}

		if env.PublicBaseURL != "" {
			c.PublicBaseURL = env.PublicBaseURL
		}

		if env.ThumbnailEdge > 0 {
			c.Thumbnails.Edge = env.ThumbnailEdge
		}
		if env.ThumbnailQuality > 0 {
			c.Thumbnails.Quality = env.ThumbnailQuality
		}
		if env.ThumbnailWorkers > 0 {
			c.Thumbnails.Workers = env.ThumbnailWorkers
		}
		if env.ThumbnailQueue > 0 {
			c.Thumbnails.QueueDepth = env.ThumbnailQueue
		}

		return nil
	}
}
