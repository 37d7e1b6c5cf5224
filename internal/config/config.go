// Package config handles configuration loading for the exchange core.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive values
// like database credentials and partner endpoint secrets to be injected
// at runtime.
//
// # Configuration Sections
//
//   - server: HTTP listener address
//   - storage: Database connection (MongoDB URI, database name)
//   - objectStore: S3-compatible object store for bucket destinations
//   - webhook: Outbound webhook transport (timeout, retries)
//   - services: Remote mapping/translation service endpoints
//   - scheduler: Poll scheduling defaults
//   - pollTargets: Static poll targets (merged with store-managed ones)
//
// # Example Configuration
//
//	storage:
//	  uri: ${MONGODB_URI}
//	  database: x12
//
//	objectStore:
//	  endpoint: s3.amazonaws.com
//	  accessKey: ${S3_ACCESS_KEY}
//	  secretKey: ${S3_SECRET_KEY}
//	  useTLS: true
//
//	pollTargets:
//	  - name: acme-dropbox
//	    interval: 5m
//	    connection:
//	      protocol: sftp
//	      host: sftp.acme.example
//	      username: edi
//	      password: ${ACME_SFTP_PASSWORD}
//	    remotePath: /outbox
//	    destinationPath: inbound/acme
//	    deleteAfterProcessing: true
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edilane/go-x12/pkg/poller"
)

// Config is the root configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Services    ServicesConfig    `yaml:"services"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	PollTargets []PollTarget      `yaml:"pollTargets"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ServicesConfig holds the remote mapping and translation service
// endpoints. The mapper defaults to the translator's address when unset.
type ServicesConfig struct {
	TranslatorURL string        `yaml:"translatorUrl"`
	MapperURL     string        `yaml:"mapperUrl"`
	Timeout       time.Duration `yaml:"timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// ObjectStoreConfig holds S3-compatible object store settings
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseTLS    bool   `yaml:"useTLS"`
	Region    string `yaml:"region"`
}

// WebhookConfig holds outbound webhook transport settings
type WebhookConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
}

// SchedulerConfig holds poll scheduling defaults
type SchedulerConfig struct {
	DefaultInterval time.Duration `yaml:"defaultInterval"`
}

// PollTarget is one statically configured poll target
type PollTarget struct {
	Name                  string                   `yaml:"name"`
	Interval              time.Duration            `yaml:"interval"`
	Connection            poller.ConnectionDetails `yaml:"connection"`
	RemotePath            string                   `yaml:"remotePath"`
	RemoteFiles           []string                 `yaml:"remoteFiles"`
	DestinationPath       string                   `yaml:"destinationPath"`
	DeleteAfterProcessing bool                     `yaml:"deleteAfterProcessing"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Services.MapperURL == "" {
		c.Services.MapperURL = c.Services.TranslatorURL
	}
	if c.Services.Timeout == 0 {
		c.Services.Timeout = 30 * time.Second
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "x12"
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 30 * time.Second
	}
	if c.Webhook.MaxRetries == 0 {
		c.Webhook.MaxRetries = 3
	}
	if c.Webhook.InitialBackoff == 0 {
		c.Webhook.InitialBackoff = time.Second
	}
	if c.Scheduler.DefaultInterval == 0 {
		c.Scheduler.DefaultInterval = 5 * time.Minute
	}
	for i := range c.PollTargets {
		if c.PollTargets[i].Interval == 0 {
			c.PollTargets[i].Interval = c.Scheduler.DefaultInterval
		}
	}
}

func (c *Config) validate() error {
	if c.Storage.URI == "" {
		return fmt.Errorf("storage.uri is required")
	}

	for _, target := range c.PollTargets {
		if target.Name == "" {
			return fmt.Errorf("pollTargets entries require a name")
		}
		switch target.Connection.Protocol {
		case poller.ProtocolFTP, poller.ProtocolSFTP:
			// Valid protocols
		default:
			return fmt.Errorf("pollTargets.%s: protocol must be 'ftp' or 'sftp', got '%s'",
				target.Name, target.Connection.Protocol)
		}
		if target.RemotePath == "" {
			return fmt.Errorf("pollTargets.%s: remotePath is required", target.Name)
		}
		if target.DestinationPath == "" {
			return fmt.Errorf("pollTargets.%s: destinationPath is required", target.Name)
		}
	}

	return nil
}
