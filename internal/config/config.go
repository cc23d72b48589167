package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config chứa toàn bộ application configuration
// Struct này được populate từ environment variables
type Config struct {
	App        AppConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Contentful ContentfulConfig
	Worker     WorkerConfig

	// DefaultEnvironment is used when a request does not carry ?env=
	DefaultEnvironment Environment
	// Parse holds one Parse server per configured environment.
	Parse map[Environment]ParseConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production (runtime mode, not the data environment)
	Port        string
	Version     string
	LogLevel    string
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type ParseConfig struct {
	URL       string // https://server.bloomlibrary.org/parse
	AppID     string
	MasterKey string
}

func (p ParseConfig) IsConfigured() bool {
	return p.URL != "" && p.AppID != "" && p.MasterKey != ""
}

// StorageConfig chọn driver cho Object Store Gateway
type StorageConfig struct {
	Driver string // s3 | minio

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string // optional, for S3-compatible endpoints
	FederationName     string // name passed to sts:GetFederationToken

	MinIO MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string // localhost:9000
	AccessKey string // minioadmin
	SecretKey string // minioadmin
	UseSSL    bool   // false for local
	Region    string // us-east-1
}

type ContentfulConfig struct {
	BaseURL     string
	SpaceID     string
	AccessToken string
	Environment string
}

type WorkerConfig struct {
	Concurrency     int
	ActionTimeout   time.Duration
	ResultRetention time.Duration
}

const (
	StorageDriverS3    = "s3"
	StorageDriverMinIO = "minio"
)

// Load đọc config từ environment variables
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Bloom Library API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Driver:             strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverS3)),
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
			AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AWSEndpoint:        getEnv("AWS_S3_ENDPOINT", ""),
			FederationName:     getEnv("AWS_FEDERATION_NAME", "bloom-upload"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
				SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
				Region:    getEnv("MINIO_REGION", "us-east-1"),
			},
		},
		Contentful: ContentfulConfig{
			BaseURL:     getEnv("CONTENTFUL_BASE_URL", "https://cdn.contentful.com"),
			SpaceID:     getEnv("CONTENTFUL_SPACE_ID", ""),
			AccessToken: getEnv("CONTENTFUL_ACCESS_TOKEN", ""),
			Environment: getEnv("CONTENTFUL_ENVIRONMENT", "master"),
		},
		Worker: WorkerConfig{
			Concurrency:     getEnvInt("WORKER_CONCURRENCY", 10),
			ActionTimeout:   getEnvDuration("ACTION_TIMEOUT", 30*time.Minute),
			ResultRetention: getEnvDuration("ACTION_RESULT_RETENTION", 24*time.Hour),
		},
		Parse: map[Environment]ParseConfig{},
	}

	defaultEnv, err := ParseEnvironment(getEnv("DEFAULT_ENV", string(EnvDevelopment)))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_ENV: %w", err)
	}
	cfg.DefaultEnvironment = defaultEnv

	for _, env := range AllEnvironments() {
		p := loadParseConfig(env)
		if p.IsConfigured() {
			cfg.Parse[env] = p
		}
	}

	// Validate critical config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate kiểm tra config có hợp lệ không
func (c *Config) Validate() error {
	if !c.DefaultEnvironment.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidEnvironment, c.DefaultEnvironment)
	}

	// Thiếu secrets cho environment mặc định là lỗi khởi động, không phải lỗi runtime
	if _, ok := c.Parse[c.DefaultEnvironment]; !ok {
		suffix := c.DefaultEnvironment.envSuffix()
		return fmt.Errorf("PARSE_URL_%s, PARSE_APP_ID_%s and PARSE_MASTER_KEY_%s must be set for default environment %s",
			suffix, suffix, suffix, c.DefaultEnvironment)
	}

	switch c.Storage.Driver {
	case StorageDriverS3:
		if c.App.Environment == "production" && (c.Storage.AWSAccessKeyID == "" || c.Storage.AWSSecretAccessKey == "") {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set in production")
		}
	case StorageDriverMinIO:
		if c.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT must be set when STORAGE_DRIVER=minio")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Contentful.SpaceID == "" || c.Contentful.AccessToken == "" {
		fmt.Println("WARNING: Contentful not configured - collection editors will not be recognized")
	}

	return nil
}

// ConfiguredEnvironments returns the environments that have a Parse server.
func (c *Config) ConfiguredEnvironments() []Environment {
	var envs []Environment
	for _, env := range AllEnvironments() {
		if _, ok := c.Parse[env]; ok {
			envs = append(envs, env)
		}
	}
	return envs
}

func loadParseConfig(env Environment) ParseConfig {
	suffix := env.envSuffix()
	return ParseConfig{
		URL:       strings.TrimRight(getEnv("PARSE_URL_"+suffix, ""), "/"),
		AppID:     getEnv("PARSE_APP_ID_"+suffix, ""),
		MasterKey: getEnv("PARSE_MASTER_KEY_"+suffix, ""),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
