package storage

import (
	"fmt"

	"bloom-api/internal/config"
)

const (
	BucketProduction  = "BloomLibraryBooks"
	BucketDevelopment = "BloomLibraryBooks-Sandbox"
	BucketUnitTest    = "bloomharvest-unittests"
)

// BucketForEnvironment maps a deployment environment to its fixed bucket.
func BucketForEnvironment(env config.Environment) (string, error) {
	switch env {
	case config.EnvProduction:
		return BucketProduction, nil
	case config.EnvDevelopment:
		return BucketDevelopment, nil
	case config.EnvUnitTest:
		return BucketUnitTest, nil
	}
	return "", fmt.Errorf("%w: %q", config.ErrInvalidEnvironment, env)
}
