package minio

import (
	"context"
	"sync"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Client wraps the MinIO client with the read-only operations the
// file registry needs
type Client struct {
	client *minio.Client
	config *Config
	logger *logger.Logger
	mu     sync.RWMutex
	closed bool
}

// ObjectInfo represents object information
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string
	ContentType string
	Metadata    map[string]string
}

// NewClient creates a new MinIO client
func NewClient(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, ErrInvalidArgument
	}
	if log == nil {
		log = logger.NewNop()
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, WrapErrorWithMessage("NewClient", err, "invalid configuration")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.UseSSL,
	}

	if cfg.Region != "" {
		opts.Region = cfg.Region
	}

	switch cfg.BucketLookup {
	case BucketLookupDNS:
		opts.BucketLookup = minio.BucketLookupDNS
	case BucketLookupPath:
		opts.BucketLookup = minio.BucketLookupPath
	default:
		opts.BucketLookup = minio.BucketLookupAuto
	}

	minioClient, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, WrapErrorWithMessage("NewClient", err, "failed to create minio client")
	}

	log.Info("minio client initialized successfully",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("use_ssl", cfg.UseSSL),
	)

	return &Client{
		client: minioClient,
		config: cfg,
		logger: log,
	}, nil
}

// Ping checks that the configured bucket is reachable
func (c *Client) Ping(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	ok, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return WrapErrorWithMessage("Ping", err, "failed to connect to minio server")
	}
	if !ok {
		return WrapError("Ping", ErrBucketNotFound, c.config.Bucket, "")
	}
	return nil
}

// Close closes the client and releases resources
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("minio client closed")
	return nil
}

// Config returns the client configuration
func (c *Client) Config() *Config {
	return c.config
}

func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// StatObject gets object metadata from the configured bucket
func (c *Client) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}
	if objectName == "" {
		return ObjectInfo{}, WrapError("StatObject", ErrInvalidObjectName, c.config.Bucket, objectName)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	info, err := c.client.StatObject(ctx, c.config.Bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, c.config.Bucket, objectName)
	}

	return ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		ETag:        info.ETag,
		ContentType: info.ContentType,
		Metadata:    info.UserMetadata,
	}, nil
}

// ListObjects lists every object below prefix, recursively. Directory
// placeholder keys (ending in "/") are skipped.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var out []ObjectInfo
	for object := range c.client.ListObjects(ctx, c.config.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, WrapError("ListObjects", object.Err, c.config.Bucket, prefix)
		}
		if object.Key == "" || object.Key[len(object.Key)-1] == '/' {
			continue
		}
		out = append(out, ObjectInfo{
			Key:         object.Key,
			Size:        object.Size,
			ETag:        object.ETag,
			ContentType: object.ContentType,
			Metadata:    object.UserMetadata,
		})
	}

	c.logger.Debug("minio objects listed",
		zap.String("bucket", c.config.Bucket),
		zap.String("prefix", prefix),
		zap.Int("count", len(out)),
	)
	return out, nil
}
