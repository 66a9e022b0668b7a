// Package config loads the xfer configuration file: client tuning, the
// session journal location, logging, and the named endpoints transfers
// refer to.
//
// Configuration is read with viper from YAML (or any format viper supports),
// overridden by XFER_-prefixed environment variables, and validated with
// go-playground/validator before use.
package config

import "time"

// Endpoint types.
const (
	TypeS3     = "s3"
	TypeMinio  = "minio"
	TypeStorj  = "storj"
	TypeGCS    = "gcs"
	TypeFS     = "fs"
	TypeMemory = "memory"
)

// Config is the root configuration.
type Config struct {
	// PartSize is a human-readable size such as "100MiB"
	PartSize          string        `mapstructure:"part_size" validate:"required"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	AbortTimeout      time.Duration `mapstructure:"abort_timeout" validate:"gte=0"`
	DetectContentType bool          `mapstructure:"detect_content_type"`

	// Journal is the path of the SQLite session journal; empty disables it
	Journal string `mapstructure:"journal"`

	Log       Log                 `mapstructure:"log"`
	Retry     Retry               `mapstructure:"retry"`
	Endpoints map[string]Endpoint `mapstructure:"endpoints" validate:"required,min=1,dive,keys,required,endkeys"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Retry bounds per-part retries.
type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=100"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

// Endpoint describes one named storage endpoint. Which fields apply depends on Type.
type Endpoint struct {
	Type string `mapstructure:"type" validate:"required,oneof=s3 minio storj gcs fs memory"`

	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`

	// S3 and MinIO
	Region          string `mapstructure:"region"`
	URL             string `mapstructure:"url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	UseSSL          bool   `mapstructure:"use_ssl"`

	// Storj
	AccessGrant string `mapstructure:"access_grant"`

	// GCS
	CredentialsFile string `mapstructure:"credentials_file"`

	// FS
	Root string `mapstructure:"root"`
}
