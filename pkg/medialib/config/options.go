package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the record database
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "mongo" {
			return fmt.Errorf("database type must be 'memory' or 'mongo', got: %s", dbType)
		}
		if dbType == "mongo" && url == "" {
			return fmt.Errorf("database URL is required for mongo")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseName sets the Mongo database name
func WithDatabaseName(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("database name cannot be empty")
		}
		c.DatabaseName = name
		return nil
	}
}

// WithFSStorage stores original bytes on the local filesystem
func WithFSStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.FSBaseDir = baseDir
		return nil
	}
}

// WithGridFSStorage stores original bytes in the Mongo GridFS bucket
func WithGridFSStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "gridfs"
		return nil
	}
}

// WithS3Storage stores original bytes in an S3-compatible bucket
func WithS3Storage(region, bucket, accessKeyID, secretAccessKey, endpoint string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("bucket cannot be empty")
		}
		c.StorageType = "s3"
		c.S3.Region = region
		c.S3.Bucket = bucket
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = endpoint != ""
		return nil
	}
}

// WithPublicBaseURL sets the public origin assets are served from
func WithPublicBaseURL(base string) Option {
	return func(c *ServerConfig) error {
		c.PublicBaseURL = base
		return nil
	}
}

// WithThumbnailWorkers sizes the background worker pool
func WithThumbnailWorkers(workers, queueDepth int) Option {
	return func(c *ServerConfig) error {
		if workers <= 0 {
			return fmt.Errorf("workers must be positive")
		}
		if queueDepth <= 0 {
			return fmt.Errorf("queue depth must be positive")
		}
		c.Thumbnails.Workers = workers
		c.Thumbnails.QueueDepth = queueDepth
		return nil
	}
}

// WithThumbnailGeometry sets the output edge length and JPEG quality
func WithThumbnailGeometry(edge, quality int) Option {
	return func(c *ServerConfig) error {
		if edge <= 0 {
			return fmt.Errorf("edge must be positive")
		}
		if quality <= 0 || quality > 100 {
			return fmt.Errorf("quality must be in 1..100")
		}
		c.Thumbnails.Edge = edge
		c.Thumbnails.Quality = quality
		return nil
	}
}
