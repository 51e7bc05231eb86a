package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// fileConfig mirrors Config's fields with mapstructure tags so an optional
// commandmcp.yaml can layer defaults underneath the environment variables
// Load() reads. Values present in the file are only used when the
// corresponding environment variable is unset.
type fileConfig struct {
	AllowedCommands   []string `mapstructure:"allowed_commands"`
	RetentionSeconds  int      `mapstructure:"retention_seconds"`
	DefaultEncoding   string   `mapstructure:"default_encoding"`
	OutputStoragePath string   `mapstructure:"output_storage_path"`
	DefaultTimeout    int      `mapstructure:"default_timeout_seconds"`
	StopGrace         int      `mapstructure:"stop_grace_seconds"`
	LogLevel           string   `mapstructure:"log_level"`
	LogFormat          string   `mapstructure:"log_format"`
	AllowedDirectories []string `mapstructure:"allowed_directories"`
}

// LoadWithFile behaves like Load, but first reads path (a commandmcp.yaml
// style file) via viper and uses its values as defaults for anything not set
// in the environment. A missing path is not an error: Load()'s env-only
// defaults apply.
func LoadWithFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	applied := &fileConfig{}
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(applied); err != nil {
			return nil, err
		}
	}

	cfg := Load()

	if len(cfg.AllowedCommands) == 0 && len(applied.AllowedCommands) > 0 {
		cfg.AllowedCommands = parseAllowedCommands(strings.Join(applied.AllowedCommands, ","))
	}
	if notSetInEnv("PROCESS_RETENTION_SECONDS") && applied.RetentionSeconds > 0 {
		cfg.RetentionSeconds = applied.RetentionSeconds
	}
	if notSetInEnv("DEFAULT_ENCODING") && applied.DefaultEncoding != "" {
		cfg.DefaultEncoding = applied.DefaultEncoding
	}
	if notSetInEnv("OUTPUT_STORAGE_PATH") && applied.OutputStoragePath != "" {
		cfg.OutputStoragePath = applied.OutputStoragePath
	}
	if notSetInEnv("COMMAND_DEFAULT_TIMEOUT_SECONDS") && applied.DefaultTimeout > 0 {
		cfg.DefaultTimeout = time.Duration(applied.DefaultTimeout) * time.Second
	}
	if notSetInEnv("PROCESS_STOP_GRACE_SECONDS") && applied.StopGrace > 0 {
		cfg.StopGrace = time.Duration(applied.StopGrace) * time.Second
	}
	if notSetInEnv("COMMAND_MCP_LOG_LEVEL") && applied.LogLevel != "" {
		cfg.LogLevel = applied.LogLevel
	}
	if notSetInEnv("COMMAND_MCP_LOG_FORMAT") && applied.LogFormat != "" {
		cfg.LogFormat = applied.LogFormat
	}
	if len(cfg.AllowedDirectories) == 0 && len(applied.AllowedDirectories) > 0 {
		cfg.AllowedDirectories = parseAllowedDirectories(strings.Join(applied.AllowedDirectories, ","))
	}

	return cfg, nil
}

func notSetInEnv(key string) bool {
	return getEnv(key, "") == ""
}
