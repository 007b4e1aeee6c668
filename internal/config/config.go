package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// DataDir holds the raw uploaded log files.
	DataDir string `yaml:"data_dir"`
}

type IngestConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	// Headers overrides the accepted sentence-header tokens.
	Headers     []string          `yaml:"headers"`
	AutoApprove AutoApproveConfig `yaml:"auto_approve"`
}

// AutoApproveConfig tunes the publication policy. Zero values fall back
// to the defaults; these are policy knobs, not algorithm constants.
type AutoApproveConfig struct {
	MinRecords     int     `yaml:"min_records"`
	MaxCPM         int     `yaml:"max_cpm"`
	MinGPSFraction float64 `yaml:"min_gps_fraction"`
}

type NotifyConfig struct {
	// Recipient receives ingestion-triggered notifications.
	Recipient string     `yaml:"recipient"`
	SMTP      SMTPConfig `yaml:"smtp"`
}

// SMTPConfig enables mail delivery when Host is set; otherwise
// notifications go to the log only.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads the YAML config at path; an empty path yields defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./bgeigie-hub.db"
	}
	if cfg.Database.DataDir == "" {
		cfg.Database.DataDir = "./uploads"
	}
	if cfg.Ingest.QueueSize <= 0 {
		cfg.Ingest.QueueSize = 256
	}
	if cfg.Ingest.WaitTimeout <= 0 {
		cfg.Ingest.WaitTimeout = 1 * time.Second
	}
	if cfg.Ingest.AutoApprove.MinRecords <= 0 {
		cfg.Ingest.AutoApprove.MinRecords = 100
	}
	if cfg.Ingest.AutoApprove.MaxCPM <= 0 {
		cfg.Ingest.AutoApprove.MaxCPM = 10000
	}
	if cfg.Ingest.AutoApprove.MinGPSFraction <= 0 {
		cfg.Ingest.AutoApprove.MinGPSFraction = 0.90
	}
	if cfg.Ingest.AutoApprove.MinGPSFraction > 1 {
		return Config{}, fmt.Errorf("ingest.auto_approve.min_gps_fraction must be <= 1")
	}
	if cfg.Notify.SMTP.Host != "" {
		if cfg.Notify.SMTP.Port <= 0 {
			cfg.Notify.SMTP.Port = 587
		}
		if cfg.Notify.SMTP.From == "" {
			return Config{}, fmt.Errorf("notify.smtp.from is required when notify.smtp.host is set")
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}
