package lexgo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/lexgo/blobstore"
	blobminio "github.com/hupe1980/lexgo/blobstore/minio"
	blobs3 "github.com/hupe1980/lexgo/blobstore/s3"
	"github.com/hupe1980/lexgo/internal/flush"
)

// Config is the file form of the Open options.
type Config struct {
	Flush    FlushFileConfig    `yaml:"flush"`
	Analysis AnalysisConfig     `yaml:"analysis"`
	Storage  StorageConfig      `yaml:"storage"`
	Resource ResourceFileConfig `yaml:"resource"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// FlushFileConfig holds the flush triggers. -1 disables a trigger.
type FlushFileConfig struct {
	MaxBufferedDocs         int     `yaml:"maxBufferedDocs"`
	RAMBufferSizeMB         float64 `yaml:"ramBufferSizeMB"`
	MaxBufferedDeleteTerms  int     `yaml:"maxBufferedDeleteTerms"`
	RAMPerThreadHardLimitMB int     `yaml:"ramPerThreadHardLimitMB"`
	MaxThreadStates         int     `yaml:"maxThreadStates"`
	MappedArena             bool    `yaml:"mappedArena"`
}

// AnalysisConfig configures text analysis.
type AnalysisConfig struct {
	StopWords      []string `yaml:"stopWords"`
	MaxTokenLength int      `yaml:"maxTokenLength"`
}

// StorageConfig selects the blob store. Backend is one of "memory",
// "local", "s3" and "minio".
type StorageConfig struct {
	Backend      string      `yaml:"backend"`
	Compression  string      `yaml:"compression"`
	JSONManifest bool        `yaml:"jsonManifest"`
	Local        LocalConfig `yaml:"local"`
	S3           S3Config    `yaml:"s3"`
	MinIO        MinIOConfig `yaml:"minio"`
}

// LocalConfig holds the directory of a local store.
type LocalConfig struct {
	Dir string `yaml:"dir"`
}

// S3Config holds the bucket of an S3 store. With DynamoDBTable set, commits
// go through a conditional write in that table.
type S3Config struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	DynamoDBTable string `yaml:"dynamoDBTable"`
}

// MinIOConfig holds the endpoint and credentials of a MinIO store.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// ResourceFileConfig holds limits for flushes and merges.
type ResourceFileConfig struct {
	MemoryLimitMB      int64 `yaml:"memoryLimitMB"`
	MaxBackgroundJobs  int64 `yaml:"maxBackgroundJobs"`
	IOLimitBytesPerSec int64 `yaml:"ioLimitBytesPerSec"`
}

// LoggingConfig controls log level and format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration Open uses without options.
func DefaultConfig() *Config {
	fc := DefaultFlushConfig()
	return &Config{
		Flush: FlushFileConfig{
			MaxBufferedDocs:         fc.MaxBufferedDocs,
			RAMBufferSizeMB:         fc.RAMBufferSizeMB,
			MaxBufferedDeleteTerms:  fc.MaxBufferedDeleteTerms,
			RAMPerThreadHardLimitMB: fc.RAMPerThreadHardLimitMB,
			MaxThreadStates:         flush.DefaultMaxThreadStates,
		},
		Storage: StorageConfig{
			Backend:     "memory",
			Compression: "lz4",
		},
		Resource: ResourceFileConfig{
			MaxBackgroundJobs: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig parses YAML from r over the defaults and applies LEXGO_*
// environment overrides.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", ErrInvalidConfig, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadConfigFile reads the YAML file at path. An empty path yields the
// defaults with environment overrides.
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadConfig(f)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEXGO_FLUSH_MAX_BUFFERED_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Flush.MaxBufferedDocs = n
		}
	}
	if v := os.Getenv("LEXGO_FLUSH_RAM_BUFFER_SIZE_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Flush.RAMBufferSizeMB = f
		}
	}
	if v := os.Getenv("LEXGO_FLUSH_MAX_THREAD_STATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Flush.MaxThreadStates = n
		}
	}
	if v := os.Getenv("LEXGO_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("LEXGO_STORAGE_COMPRESSION"); v != "" {
		cfg.Storage.Compression = v
	}
	if v := os.Getenv("LEXGO_STORAGE_LOCAL_DIR"); v != "" {
		cfg.Storage.Local.Dir = v
	}
	if v := os.Getenv("LEXGO_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("LEXGO_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
	if v := os.Getenv("LEXGO_S3_DYNAMODB_TABLE"); v != "" {
		cfg.Storage.S3.DynamoDBTable = v
	}
	if v := os.Getenv("LEXGO_MINIO_ENDPOINT"); v != "" {
		cfg.Storage.MinIO.Endpoint = v
	}
	if v := os.Getenv("LEXGO_MINIO_ACCESS_KEY"); v != "" {
		cfg.Storage.MinIO.AccessKey = v
	}
	if v := os.Getenv("LEXGO_MINIO_SECRET_KEY"); v != "" {
		cfg.Storage.MinIO.SecretKey = v
	}
	if v := os.Getenv("LEXGO_MINIO_BUCKET"); v != "" {
		cfg.Storage.MinIO.Bucket = v
	}
	if v := os.Getenv("LEXGO_RESOURCE_MEMORY_LIMIT_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Resource.MemoryLimitMB = n
		}
	}
	if v := os.Getenv("LEXGO_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEXGO_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Logger builds the configured logger.
func (c *Config) Logger() (*Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return nil, fmt.Errorf("%w: logging level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text":
		return NewTextLogger(level), nil
	case "json":
		return NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("%w: logging format %q", ErrInvalidConfig, c.Logging.Format)
	}
}

// BlobStore builds the configured store. Remote stores load the default AWS
// configuration or connect to MinIO.
func (c *Config) BlobStore(ctx context.Context) (blobstore.BlobStore, error) {
	s := c.Storage
	switch strings.ToLower(s.Backend) {
	case "", "memory":
		return blobstore.NewMemoryStore(), nil
	case "local":
		if s.Local.Dir == "" {
			return nil, fmt.Errorf("%w: storage.local.dir is required", ErrInvalidConfig)
		}
		if err := os.MkdirAll(s.Local.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", s.Local.Dir, err)
		}
		return blobstore.NewLocalStore(s.Local.Dir), nil
	case "s3":
		if s.S3.Bucket == "" {
			return nil, fmt.Errorf("%w: storage.s3.bucket is required", ErrInvalidConfig)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		st := blobs3.NewStore(awss3.NewFromConfig(awsCfg), s.S3.Bucket, blobs3.WithPrefix(s.S3.Prefix))
		if s.S3.DynamoDBTable == "" {
			return st, nil
		}
		uri := "s3://" + s.S3.Bucket
		if s.S3.Prefix != "" {
			uri += "/" + strings.Trim(s.S3.Prefix, "/")
		}
		return blobs3.NewDDBCommitStore(st, dynamodb.NewFromConfig(awsCfg), s.S3.DynamoDBTable, uri), nil
	case "minio":
		if s.MinIO.Endpoint == "" || s.MinIO.Bucket == "" {
			return nil, fmt.Errorf("%w: storage.minio.endpoint and bucket are required", ErrInvalidConfig)
		}
		client, err := minio.New(s.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(s.MinIO.AccessKey, s.MinIO.SecretKey, ""),
			Secure: s.MinIO.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to minio: %w", err)
		}
		return blobminio.NewStore(client, s.MinIO.Bucket, s.MinIO.Prefix), nil
	default:
		return nil, fmt.Errorf("%w: storage backend %q", ErrInvalidConfig, s.Backend)
	}
}

// Options turns the configuration into Open options.
func (c *Config) Options(ctx context.Context) ([]Option, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	st, err := c.BlobStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithFlushConfig(FlushConfig{
			MaxBufferedDocs:         c.Flush.MaxBufferedDocs,
			RAMBufferSizeMB:         c.Flush.RAMBufferSizeMB,
			MaxBufferedDeleteTerms:  c.Flush.MaxBufferedDeleteTerms,
			RAMPerThreadHardLimitMB: c.Flush.RAMPerThreadHardLimitMB,
		}),
		WithBlobStore(st),
		WithCompression(c.Storage.Compression),
		WithResourceConfig(ResourceConfig{
			MemoryLimitBytes:   c.Resource.MemoryLimitMB * 1024 * 1024,
			MaxBackgroundJobs:  c.Resource.MaxBackgroundJobs,
			IOLimitBytesPerSec: c.Resource.IOLimitBytesPerSec,
		}),
	}
	if c.Flush.MaxThreadStates > 0 {
		opts = append(opts, WithMaxThreadStates(c.Flush.MaxThreadStates))
	}
	if c.Flush.MappedArena {
		opts = append(opts, WithMappedArena())
	}
	if c.Storage.JSONManifest {
		opts = append(opts, WithJSONManifest())
	}
	if len(c.Analysis.StopWords) > 0 {
		opts = append(opts, WithStopWords(c.Analysis.StopWords...))
	}
	if c.Analysis.MaxTokenLength > 0 {
		opts = append(opts, WithMaxTokenLength(c.Analysis.MaxTokenLength))
	}
	return opts, nil
}
