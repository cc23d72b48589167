package config

import (
	"errors"
	"fmt"
	"strings"
)

// Environment chọn bộ backend (Parse server, bucket) cho một request.
// Giá trị này được truyền tường minh qua mọi lời gọi, không có switch toàn cục.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvUnitTest    Environment = "unit-test"
)

var ErrInvalidEnvironment = errors.New("invalid environment")

// AllEnvironments lists every deployment environment in a stable order.
func AllEnvironments() []Environment {
	return []Environment{EnvProduction, EnvDevelopment, EnvUnitTest}
}

func (e Environment) IsValid() bool {
	switch e {
	case EnvProduction, EnvDevelopment, EnvUnitTest:
		return true
	}
	return false
}

func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment accepts the canonical names plus the short forms used in
// the public API query string (?env=prod|dev|unittest).
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return EnvProduction, nil
	case "development", "dev":
		return EnvDevelopment, nil
	case "unit-test", "unittest", "test":
		return EnvUnitTest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEnvironment, s)
}

// envSuffix is the suffix of per-environment variables, e.g. PARSE_APP_ID_PROD.
func (e Environment) envSuffix() string {
	switch e {
	case EnvProduction:
		return "PROD"
	case EnvDevelopment:
		return "DEV"
	case EnvUnitTest:
		return "UNITTEST"
	}
	return ""
}
