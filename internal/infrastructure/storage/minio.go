package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/infrastructure/metrics"
)

const driverMinIO = "minio"

// MinIOGateway implements Gateway against a MinIO server, used for local
// development in place of S3.
type MinIOGateway struct {
	client   *minio.Client
	cfg      config.MinIOConfig
	bucket   string
	storeURL string
}

// NewMinIOGatewayFactory returns a factory that builds one gateway per bucket.
// MinIO rejects upper-case bucket names, so the environment bucket is lowercased.
func NewMinIOGatewayFactory(cfg config.MinIOConfig) GatewayFactory {
	return func(bucket string) (Gateway, error) {
		return NewMinIOGateway(context.Background(), cfg, strings.ToLower(bucket))
	}
}

// NewMinIOGateway khởi tạo MinIO client, tạo bucket nếu chưa có
func NewMinIOGateway(ctx context.Context, cfg config.MinIOConfig, bucket string) (*MinIOGateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info().Str("bucket", bucket).Msg("Created MinIO bucket")
	}

	return &MinIOGateway{
		client:   client,
		cfg:      cfg,
		bucket:   bucket,
		storeURL: strings.TrimRight(client.EndpointURL().String(), "/") + "/" + bucket,
	}, nil
}

func (g *MinIOGateway) Bucket() string   { return g.bucket }
func (g *MinIOGateway) StoreURL() string { return g.storeURL }

func (g *MinIOGateway) ListPrefixKeys(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := g.listPrefix(ctx, prefix)
	metrics.ObserveStoreOperation(driverMinIO, "list", err)
	return objects, err
}

func (g *MinIOGateway) listPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if prefix == "" {
		return nil, ErrEmptyPrefix
	}

	// minio-go tự phân trang bên trong channel
	objectsCh := g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   MaxKeysPerRequest,
	})

	var objects []ObjectInfo
	for object := range objectsCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{Key: object.Key, ETag: trimETag(object.ETag)})
	}
	return objects, nil
}

func (g *MinIOGateway) CopyPrefix(ctx context.Context, srcPrefix, destPrefix string, keys []string) error {
	err := g.copyPrefix(ctx, srcPrefix, destPrefix, keys)
	metrics.ObserveStoreOperation(driverMinIO, "copy", err)
	return err
}

func (g *MinIOGateway) copyPrefix(ctx context.Context, srcPrefix, destPrefix string, keys []string) error {
	if srcPrefix == "" || destPrefix == "" {
		return ErrEmptyPrefix
	}

	if keys == nil {
		objects, err := g.listPrefix(ctx, srcPrefix)
		if err != nil {
			return err
		}
		for _, obj := range objects {
			keys = append(keys, obj.Key)
		}
	}

	for _, key := range keys {
		destKey, err := rewriteKey(key, srcPrefix, destPrefix)
		if err != nil {
			return err
		}

		srcOpts := minio.CopySrcOptions{Bucket: g.bucket, Object: key}
		dstOpts := minio.CopyDestOptions{Bucket: g.bucket, Object: destKey}
		if _, err := g.client.CopyObject(ctx, dstOpts, srcOpts); err != nil {
			return fmt.Errorf("failed to copy %s: %w", key, err)
		}
		metrics.ObjectsCopiedTotal.Inc()
	}
	return nil
}

func (g *MinIOGateway) DeletePrefix(ctx context.Context, prefix, excludePrefix string) error {
	err := g.deletePrefix(ctx, prefix, excludePrefix)
	metrics.ObserveStoreOperation(driverMinIO, "delete", err)
	return err
}

func (g *MinIOGateway) deletePrefix(ctx context.Context, prefix, excludePrefix string) error {
	objects, err := g.listPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	keys := keysToDelete(objects, excludePrefix)
	if len(keys) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	go func() {
		defer close(objectsCh)
		for _, key := range keys {
			objectsCh <- minio.ObjectInfo{Key: key}
		}
	}()

	// RemoveObjects gửi theo lô 1000 key; đọc hết errorCh để goroutine của minio-go kết thúc
	errorCh := g.client.RemoveObjects(ctx, g.bucket, objectsCh, minio.RemoveObjectsOptions{})
	var firstErr error
	failed := 0
	for rmErr := range errorCh {
		if rmErr.Err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", rmErr.ObjectName, rmErr.Err)
		}
	}
	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Str("prefix", prefix).
			Int("failed", failed).
			Msg("MinIO multi-object delete reported errors")
	}
	return firstErr
}

// IssueScopedCredentials uses MinIO's AssumeRole STS with the same inline
// prefix policy the S3 gateway sends to GetFederationToken.
func (g *MinIOGateway) IssueScopedCredentials(ctx context.Context, prefix string, duration time.Duration) (*Credentials, error) {
	creds, err := g.issueScopedCredentials(prefix, duration)
	metrics.ObserveStoreOperation(driverMinIO, "credentials", err)
	return creds, err
}

func (g *MinIOGateway) issueScopedCredentials(prefix string, duration time.Duration) (*Credentials, error) {
	policy, err := PrefixPolicy(g.bucket, prefix)
	if err != nil {
		return nil, err
	}

	scheme := "http"
	if g.cfg.UseSSL {
		scheme = "https"
	}
	endpoint := (&url.URL{Scheme: scheme, Host: g.cfg.Endpoint}).String()

	sts, err := credentials.NewSTSAssumeRole(endpoint, credentials.STSAssumeRoleOptions{
		AccessKey:       g.cfg.AccessKey,
		SecretKey:       g.cfg.SecretKey,
		Policy:          policy,
		DurationSeconds: int(duration / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sts client: %w", err)
	}

	value, err := sts.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to assume role: %w", err)
	}

	return &Credentials{
		AccessKeyID:     value.AccessKeyID,
		SecretAccessKey: value.SecretAccessKey,
		SessionToken:    value.SessionToken,
		Expiration:      value.Expiration,
	}, nil
}

func (g *MinIOGateway) HealthCheck(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", g.bucket)
	}
	return nil
}

var _ Gateway = (*MinIOGateway)(nil)
