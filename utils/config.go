package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DisposaBoy/JsonConfigReader"
	yaml "gopkg.in/yaml.v3"
)

// Config is the engine configuration
type Config struct {
	// General
	RootDir   string `json:"rootDir"       yaml:"root_dir"`
	LogLevel  string `json:"logLevel"      yaml:"log_level"`
	LogFormat string `json:"logFormat"     yaml:"log_format"`

	// Metadata database
	DatabasePath string `json:"databasePath" yaml:"database_path"`

	// Blob storage
	PoolRoot string   `json:"poolRoot"      yaml:"pool_root"`
	S3       S3Config `json:"s3"            yaml:"s3"`

	// Signing
	GpgBinary    string `json:"gpgBinary"   yaml:"gpg_binary"`
	GpgDisable   bool   `json:"gpgDisable"  yaml:"gpg_disable"`
	NativeSigner bool   `json:"nativeSigner" yaml:"native_signer"`

	// Leases
	RedisAddr     string `json:"redisAddr"     yaml:"redis_addr"`
	RedisPassword string `json:"redisPassword" yaml:"redis_password"`
	RedisDB       int    `json:"redisDB"       yaml:"redis_db"`

	// Generation
	RetentionWindow time.Duration `json:"retentionWindow" yaml:"retention_window"`

	// Binary field reader tool, empty means the in-process reader
	FieldReaderTool string   `json:"fieldReaderTool" yaml:"field_reader_tool"`
	FieldReaderArgs []string `json:"fieldReaderArgs" yaml:"field_reader_args"`
}

// S3Config configures the optional S3 blob store backend
type S3Config struct {
	Region          string `json:"region"          yaml:"region"`
	Bucket          string `json:"bucket"          yaml:"bucket"`
	Endpoint        string `json:"endpoint"        yaml:"endpoint"`
	Prefix          string `json:"prefix"          yaml:"prefix"`
	AccessKeyID     string `json:"accessKeyID"     yaml:"access_key_id"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secret_access_key"`
	ForcePathStyle  bool   `json:"forcePathStyle"  yaml:"force_path_style"`
}

// DefaultConfig returns a config with usable defaults
func DefaultConfig() *Config {
	return &Config{
		RootDir:         ".debindex",
		LogLevel:        "info",
		LogFormat:       "default",
		GpgBinary:       "gpg",
		RetentionWindow: time.Hour,
	}
}

// LoadConfig loads JSON (with comments) or YAML config from path,
// overriding the defaults field by field
func LoadConfig(path string, config *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err = yaml.NewDecoder(f).Decode(config); err != nil {
			return fmt.Errorf("error parsing config file %s: %s", path, err)
		}
		return nil
	}

	if err = json.NewDecoder(JsonConfigReader.New(f)).Decode(config); err != nil {
		return fmt.Errorf("error parsing config file %s: %s", path, err)
	}
	return nil
}
