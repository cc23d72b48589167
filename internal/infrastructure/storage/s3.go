package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/config"
	"bloom-api/internal/infrastructure/metrics"
)

const driverS3 = "s3"

// S3API is the subset of *s3.Client the gateway uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// STSAPI is the subset of *sts.Client the gateway uses.
type STSAPI interface {
	GetFederationToken(ctx context.Context, params *sts.GetFederationTokenInput, optFns ...func(*sts.Options)) (*sts.GetFederationTokenOutput, error)
}

// S3Gateway implements Gateway against AWS S3.
type S3Gateway struct {
	bucket         string
	storeURL       string
	federationName string
	client         S3API
	sts            STSAPI
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3GatewayFactory loads the AWS config once and returns a factory that
// builds a gateway per bucket sharing the same clients.
func NewS3GatewayFactory(ctx context.Context, cfg config.StorageConfig) (GatewayFactory, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))

	// Use static credentials if provided, otherwise fall back to default chain.
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.AWSEndpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			o.UsePathStyle = true
		})
	}
	s3Client := s3.NewFromConfig(awsCfg, s3Opts...)
	stsClient := sts.NewFromConfig(awsCfg)

	return func(bucket string) (Gateway, error) {
		storeURL := "https://s3.amazonaws.com/" + bucket
		if cfg.AWSEndpoint != "" {
			storeURL = strings.TrimRight(cfg.AWSEndpoint, "/") + "/" + bucket
		}
		return NewS3GatewayWithClients(bucket, storeURL, cfg.FederationName, s3Client, stsClient), nil
	}, nil
}

// NewS3GatewayWithClients creates a gateway with pre-configured clients.
func NewS3GatewayWithClients(bucket, storeURL, federationName string, client S3API, stsClient STSAPI) *S3Gateway {
	return &S3Gateway{
		bucket:         bucket,
		storeURL:       strings.TrimRight(storeURL, "/"),
		federationName: federationName,
		client:         client,
		sts:            stsClient,
	}
}

func (g *S3Gateway) Bucket() string   { return g.bucket }
func (g *S3Gateway) StoreURL() string { return g.storeURL }

// ListPrefixKeys pages through ListObjectsV2 until the listing is no longer truncated.
func (g *S3Gateway) ListPrefixKeys(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := g.listPrefix(ctx, prefix)
	metrics.ObserveStoreOperation(driverS3, "list", err)
	return objects, err
}

func (g *S3Gateway) listPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if prefix == "" {
		return nil, ErrEmptyPrefix
	}

	var (
		objects []ObjectInfo
		token   *string
		pages   int
	)
	for {
		resp, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(g.bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(MaxKeysPerRequest),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s (page %d): %w", prefix, pages+1, describeAWSError(err))
		}
		pages++

		for _, obj := range resp.Contents {
			objects = append(objects, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				ETag: trimETag(aws.ToString(obj.ETag)),
			})
		}

		if !aws.ToBool(resp.IsTruncated) || resp.NextContinuationToken == nil {
			break
		}
		token = resp.NextContinuationToken
	}

	log.Debug().
		Str("bucket", g.bucket).
		Str("prefix", prefix).
		Int("pages", pages).
		Int("keys", len(objects)).
		Msg("Listed prefix")

	return objects, nil
}

func (g *S3Gateway) CopyPrefix(ctx context.Context, srcPrefix, destPrefix string, keys []string) error {
	err := g.copyPrefix(ctx, srcPrefix, destPrefix, keys)
	metrics.ObserveStoreOperation(driverS3, "copy", err)
	return err
}

func (g *S3Gateway) copyPrefix(ctx context.Context, srcPrefix, destPrefix string, keys []string) error {
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

		_, err = g.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(g.bucket),
			Key:        aws.String(destKey),
			CopySource: aws.String(copySource(g.bucket, key)),
		})
		if err != nil {
			return fmt.Errorf("copying %s to %s: %w", key, destKey, describeAWSError(err))
		}
		metrics.ObjectsCopiedTotal.Inc()
	}
	return nil
}

func (g *S3Gateway) DeletePrefix(ctx context.Context, prefix, excludePrefix string) error {
	err := g.deletePrefix(ctx, prefix, excludePrefix)
	metrics.ObserveStoreOperation(driverS3, "delete", err)
	return err
}

func (g *S3Gateway) deletePrefix(ctx context.Context, prefix, excludePrefix string) error {
	objects, err := g.listPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	for _, batch := range chunk(keysToDelete(objects, excludePrefix), MaxKeysPerRequest) {
		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		resp, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(g.bucket),
			Delete: &types.Delete{
				Objects: ids,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("batch-deleting under %s: %w", prefix, describeAWSError(err))
		}
		if len(resp.Errors) > 0 {
			first := resp.Errors[0]
			return fmt.Errorf("batch-deleting under %s: %d keys failed, first %s: %s",
				prefix, len(resp.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

// IssueScopedCredentials calls sts:GetFederationToken with an inline policy
// limited to prefix.
func (g *S3Gateway) IssueScopedCredentials(ctx context.Context, prefix string, duration time.Duration) (*Credentials, error) {
	creds, err := g.issueScopedCredentials(ctx, prefix, duration)
	metrics.ObserveStoreOperation(driverS3, "credentials", err)
	return creds, err
}

func (g *S3Gateway) issueScopedCredentials(ctx context.Context, prefix string, duration time.Duration) (*Credentials, error) {
	policy, err := PrefixPolicy(g.bucket, prefix)
	if err != nil {
		return nil, err
	}

	resp, err := g.sts.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String(g.federationName),
		Policy:          aws.String(policy),
		DurationSeconds: aws.Int32(int32(duration / time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("getting federation token: %w", describeAWSError(err))
	}
	if resp.Credentials == nil {
		return nil, errors.New("getting federation token: no credentials returned")
	}

	return &Credentials{
		AccessKeyID:     aws.ToString(resp.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(resp.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(resp.Credentials.SessionToken),
		Expiration:      aws.ToTime(resp.Credentials.Expiration),
	}, nil
}

// HealthCheck verifies that the bucket is accessible.
func (g *S3Gateway) HealthCheck(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(g.bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", g.bucket, describeAWSError(err))
	}
	return nil
}

// copySource URL-encodes bucket/key segment by segment; titles contain spaces.
func copySource(bucket, key string) string {
	segments := strings.Split(bucket+"/"+key, "/")
	for i, s := range segments {
		// S3 decodes x-amz-copy-source as a query value: '+' would become a space
		segments[i] = strings.ReplaceAll(url.PathEscape(s), "+", "%2B")
	}
	return strings.Join(segments, "/")
}

// describeAWSError keeps the API error code in the message.
func describeAWSError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return err
}

var _ Gateway = (*S3Gateway)(nil)
