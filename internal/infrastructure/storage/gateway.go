package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bloom-api/internal/config"
)

// MaxKeysPerRequest is the page size of a listing and the batch size of a
// multi-object delete. S3 never returns or accepts more than this per call.
const MaxKeysPerRequest = 1000

var (
	ErrEmptyPrefix      = errors.New("storage: prefix must not be empty")
	ErrKeyOutsidePrefix = errors.New("storage: key is not under source prefix")
)

// ObjectInfo is one listed key and its content fingerprint.
type ObjectInfo struct {
	Key  string
	ETag string // quotes stripped
}

// Credentials are temporary keys limited to one prefix.
type Credentials struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

// Gateway is the object store as the upload workflow sees it: one bucket,
// operations scoped by key prefix.
type Gateway interface {
	Bucket() string
	// StoreURL is the public URL of the bucket without a trailing slash.
	StoreURL() string
	ListPrefixKeys(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// CopyPrefix copies keys (or every key under srcPrefix when keys is nil)
	// to destPrefix. It stops at the first failure; earlier copies stay.
	CopyPrefix(ctx context.Context, srcPrefix, destPrefix string, keys []string) error
	// DeletePrefix removes every key under prefix that is not also under
	// excludePrefix. An empty excludePrefix excludes nothing.
	DeletePrefix(ctx context.Context, prefix, excludePrefix string) error
	IssueScopedCredentials(ctx context.Context, prefix string, duration time.Duration) (*Credentials, error)
	HealthCheck(ctx context.Context) error
}

// Resolver returns the gateway of an environment's bucket.
type Resolver interface {
	Gateway(env config.Environment) (Gateway, error)
}

// GatewayFactory builds a gateway for one bucket.
type GatewayFactory func(bucket string) (Gateway, error)

// EnvironmentResolver lazily builds one gateway per environment bucket.
type EnvironmentResolver struct {
	factory  GatewayFactory
	mu       sync.Mutex
	gateways map[config.Environment]Gateway
}

func NewEnvironmentResolver(factory GatewayFactory) *EnvironmentResolver {
	return &EnvironmentResolver{
		factory:  factory,
		gateways: make(map[config.Environment]Gateway),
	}
}

func (r *EnvironmentResolver) Gateway(env config.Environment) (Gateway, error) {
	bucket, err := BucketForEnvironment(env)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gateways[env]; ok {
		return g, nil
	}
	g, err := r.factory(bucket)
	if err != nil {
		return nil, fmt.Errorf("create gateway for %s: %w", env, err)
	}
	r.gateways[env] = g
	return g, nil
}

// rewriteKey substitutes destPrefix for srcPrefix at the start of key.
func rewriteKey(key, srcPrefix, destPrefix string) (string, error) {
	if !strings.HasPrefix(key, srcPrefix) {
		return "", fmt.Errorf("%w: %s", ErrKeyOutsidePrefix, key)
	}
	return destPrefix + strings.TrimPrefix(key, srcPrefix), nil
}

// keysToDelete filters listed objects by excludePrefix.
func keysToDelete(objects []ObjectInfo, excludePrefix string) []string {
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if excludePrefix != "" && strings.HasPrefix(obj.Key, excludePrefix) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys
}

// chunk splits keys into batches of at most size.
func chunk(keys []string, size int) [][]string {
	var batches [][]string
	for len(keys) > size {
		batches = append(batches, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		batches = append(batches, keys)
	}
	return batches
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}
