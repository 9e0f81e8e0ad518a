package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/ranktime/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. RANKTIME_SERVER_LISTEN.
const EnvPrefix = "RANKTIME"

// FileConfig represents the top-level TOML structure.
//
//	[log]
//	level = "debug"
//	format = "json"
//	file = "/var/log/ranktime.log"
//
//	[ingest]
//	path = "timings.jsonl"
//	strict = true
//
//	[report]
//	format = "yaml"
//	sort = true
//
//	[export]
//	dsn = "sqlite:///var/lib/ranktime/stats.db"
//
//	[server]
//	listen = ":8080"
//	base_path = "/api"
//	engine = "gin"
//
//	[server.tls]
//	enabled = true
//	dir = "/etc/ranktime/tls"
//	auto_generate = true
//
//	[metrics]
//	listen = ":9090"
type FileConfig struct {
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Ingest  IngestConfig  `toml:"ingest" mapstructure:"ingest"`
	Report  ReportConfig  `toml:"report" mapstructure:"report"`
	Export  ExportConfig  `toml:"export" mapstructure:"export"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type IngestConfig struct {
	Path   string `toml:"path" mapstructure:"path"`
	Strict bool   `toml:"strict" mapstructure:"strict"`
}

type ReportConfig struct {
	Format string `toml:"format" mapstructure:"format"`
	Sort   bool   `toml:"sort" mapstructure:"sort"`
}

type ExportConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string    `toml:"listen" mapstructure:"listen"`
	BasePath string    `toml:"base_path" mapstructure:"base_path"`
	Engine   string    `toml:"engine" mapstructure:"engine"`
	TLS      TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the API listener. CertFile and KeyFile win
// over Dir; with AutoGenerate a self-signed pair is written to Dir when
// missing.
type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	MaxVersion   string   `toml:"max_version" mapstructure:"max_version"`
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// MetricsConfig selects a dedicated listener for /metrics. An empty Listen
// serves /metrics on the API listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// Every key gets a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file", "")
	v.SetDefault("log.compress", false)
	v.SetDefault("ingest.path", "")
	v.SetDefault("ingest.strict", false)
	v.SetDefault("report.format", "table")
	v.SetDefault("report.sort", true)
	v.SetDefault("export.dsn", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.engine", "gin")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetDefault("server.tls.max_version", "")
	v.SetDefault("server.tls.common_name", "localhost")
	v.SetDefault("server.tls.valid_days", 365)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", "")
}

// Load reads defaults, the TOML file at path when path is non-empty, and
// environment variables prefixed with RANKTIME_ (RANKTIME_EXPORT_DSN).
func Load(path string) (FileConfig, error) {
	return load(path)
}

// LoadConfig is Load with a mandatory file.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	return load(path)
}

func load(path string) (FileConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return FileConfig{}, err
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, err
	}
	if err := fc.Validate(); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// Validate checks enumerated values.
func (fc FileConfig) Validate() error {
	switch strings.ToLower(fc.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", fc.Log.Format)
	}
	switch strings.ToLower(fc.Report.Format) {
	case "", "table", "json", "yaml":
	default:
		return fmt.Errorf("report.format must be table, json or yaml, got %q", fc.Report.Format)
	}
	switch strings.ToLower(fc.Server.Engine) {
	case "", "gin", "echo":
	default:
		return fmt.Errorf("server.engine must be gin or echo, got %q", fc.Server.Engine)
	}
	return nil
}

// LoggerConfig converts the [log] section.
func (fc FileConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  fc.Log.Level,
		Format: fc.Log.Format,
		Color:  fc.Log.Color,
		File: logger.FileConfig{
			Path:       fc.Log.File,
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
			Compress:   fc.Log.Compress,
		},
	}
}
