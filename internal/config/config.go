package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/s3zip/internal/core"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment override, e.g. S3ZIP_EXTRACT_BUCKET.
const EnvPrefix = "S3ZIP"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Extract ExtractConfig `mapstructure:"extract"`
	Pack    PackConfig    `mapstructure:"pack"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "s3" or "localfs"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

// S3Config holds S3 connection settings. Empty credentials fall back to the
// ambient AWS credential chain (the function's execution role).
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	PartSize     int64  `mapstructure:"part_size"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// ExtractConfig holds the unzip function defaults. Event payloads override
// bucket, key, password and destination fields per invocation.
type ExtractConfig struct {
	Bucket            string        `mapstructure:"bucket"`
	Key               string        `mapstructure:"key"`
	Password          string        `mapstructure:"password"`
	DestinationBucket string        `mapstructure:"destination_bucket"`
	DestinationPrefix string        `mapstructure:"destination_prefix"`
	SafetyMargin      time.Duration `mapstructure:"safety_margin"`
	DefaultBudget     time.Duration `mapstructure:"default_budget"`
	TempDir           string        `mapstructure:"temp_dir"`
	ProgressEvery     int           `mapstructure:"progress_every"`
}

// PackConfig holds the zip function defaults.
type PackConfig struct {
	SourceBucket      string `mapstructure:"source_bucket"`
	SourcePrefix      string `mapstructure:"source_prefix"`
	DestinationBucket string `mapstructure:"destination_bucket"`
	DestinationKey    string `mapstructure:"destination_key"`
	Password          string `mapstructure:"password"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load reads configuration from file and environment. An empty path reads the
// environment only, which is how the functions are configured when deployed.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that are
// absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.endpoint", d.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.access_key", d.Storage.S3.AccessKey)
	v.SetDefault("storage.s3.secret_key", d.Storage.S3.SecretKey)
	v.SetDefault("storage.s3.use_path_style", d.Storage.S3.UsePathStyle)
	v.SetDefault("storage.s3.part_size", d.Storage.S3.PartSize)
	v.SetDefault("storage.s3.concurrency", d.Storage.S3.Concurrency)

	v.SetDefault("extract.bucket", d.Extract.Bucket)
	v.SetDefault("extract.key", d.Extract.Key)
	v.SetDefault("extract.password", d.Extract.Password)
	v.SetDefault("extract.destination_bucket", d.Extract.DestinationBucket)
	v.SetDefault("extract.destination_prefix", d.Extract.DestinationPrefix)
	v.SetDefault("extract.safety_margin", d.Extract.SafetyMargin)
	v.SetDefault("extract.default_budget", d.Extract.DefaultBudget)
	v.SetDefault("extract.temp_dir", d.Extract.TempDir)
	v.SetDefault("extract.progress_every", d.Extract.ProgressEvery)

	v.SetDefault("pack.source_bucket", d.Pack.SourceBucket)
	v.SetDefault("pack.source_prefix", d.Pack.SourcePrefix)
	v.SetDefault("pack.destination_bucket", d.Pack.DestinationBucket)
	v.SetDefault("pack.destination_key", d.Pack.DestinationKey)
	v.SetDefault("pack.password", d.Pack.Password)

	v.SetDefault("metrics.pushgateway_url", d.Metrics.PushgatewayURL)
	v.SetDefault("metrics.job", d.Metrics.Job)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Type: "s3",
			S3: S3Config{
				PartSize:    5 * 1024 * 1024,
				Concurrency: 5,
			},
		},
		Extract: ExtractConfig{
			SafetyMargin:  60 * time.Second,
			DefaultBudget: 840 * time.Second,
			TempDir:       os.TempDir(),
			ProgressEvery: 100,
		},
		Pack: PackConfig{
			DestinationKey: "all_files.zip",
		},
		Metrics: MetricsConfig{
			Job: "s3zip",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("log level %q: %w", c.Log.Level, err))
		}
	}

	switch c.Storage.Type {
	case "s3":
		if (c.Storage.S3.AccessKey == "") != (c.Storage.S3.SecretKey == "") {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 access_key and secret_key must be set together"))
		}
		if c.Storage.S3.PartSize != 0 && c.Storage.S3.PartSize < 5*1024*1024 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("s3 part_size must be at least 5MB, got %d", c.Storage.S3.PartSize))
		}
		if c.Storage.S3.Concurrency < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("s3 concurrency cannot be negative, got %d", c.Storage.S3.Concurrency))
		}
	case "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required when type is localfs"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("storage type must be s3 or localfs, got %q", c.Storage.Type))
	}

	if c.Extract.SafetyMargin < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("safety_margin cannot be negative, got %s", c.Extract.SafetyMargin))
	}
	if c.Extract.DefaultBudget <= c.Extract.SafetyMargin {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("default_budget %s must exceed safety_margin %s",
				c.Extract.DefaultBudget, c.Extract.SafetyMargin))
	}
	if c.Extract.ProgressEvery < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("progress_every must be positive, got %d", c.Extract.ProgressEvery))
	}

	return nil
}
