package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIConfig     APIConfig     `json:"api" yaml:"api"`
	ServerConfig  ServerConfig  `json:"server" yaml:"server"`
	LoggingConfig LoggingConfig `json:"logging" yaml:"logging"`
	SessionConfig SessionConfig `json:"session" yaml:"session"`
	PollingConfig PollingConfig `json:"polling" yaml:"polling"`
	LoungeConfig  LoungeConfig  `json:"lounge" yaml:"lounge"`
	RedisConfig   RedisConfig   `json:"redis" yaml:"redis"`
	VaultConfig   VaultConfig   `json:"vault" yaml:"vault"`
}

// APIConfig points at the remote journal backend
type APIConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" yaml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" yaml:"include_file"` // Include file and line number
}

// ServerConfig holds the companion HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"` // comma separated
	StaticFilesPath string `json:"static_files_path" yaml:"static_files_path"`
	ProductionMode  bool   `json:"production_mode" yaml:"production_mode"`
	ReadTimeout     int    `json:"read_timeout" yaml:"read_timeout"`         // Seconds
	WriteTimeout    int    `json:"write_timeout" yaml:"write_timeout"`       // Seconds, covers the 5m meeting wait
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"` // Seconds
}

// SessionConfig controls where the token and user snapshot are persisted
type SessionConfig struct {
	Backend  string `json:"backend" yaml:"backend"` // "file", "redis" or "memory"
	FilePath string `json:"file_path" yaml:"file_path"`
	// SealKey is a 64 char hex key; when set the session file is encrypted
	SealKey   string `json:"seal_key" yaml:"seal_key"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// PollingConfig holds the refresh intervals of the shared feeds
type PollingConfig struct {
	Notifications  time.Duration `json:"notifications" yaml:"notifications"`
	Leaderboard    time.Duration `json:"leaderboard" yaml:"leaderboard"`
	OnlineFriends  time.Duration `json:"online_friends" yaml:"online_friends"`
	CommunityStats time.Duration `json:"community_stats" yaml:"community_stats"`
	MeetingCheck   time.Duration `json:"meeting_check" yaml:"meeting_check"`
}

type LoungeConfig struct {
	ReactionCooldown time.Duration `json:"reaction_cooldown" yaml:"reaction_cooldown"`
}

// RedisConfig holds Redis configuration for session persistence
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV secrets engine mount path
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path of the login credentials
	TLSEnabled bool   `json:"tls_enabled" yaml:"tls_enabled"`
	CACert     string `json:"ca_cert" yaml:"ca_cert"`
}

// configFiles are tried in order, the first readable one wins
var configFiles = []string{"config.json", "config.yaml", "config.yml"}

func Load() (*Config, error) {
	var cfg *Config
	for _, name := range configFiles {
		loaded, err := loadFromFile(name)
		if err == nil {
			cfg = loaded
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if cfg == nil {
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFile loads a specific config file and applies environment overrides
func LoadFile(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Journal API
	cfg.APIConfig.BaseURL = getEnvOrDefault("JOURNAL_API_URL", cfg.APIConfig.BaseURL)
	if cfg.APIConfig.BaseURL == "" {
		cfg.APIConfig.BaseURL = "http://localhost:5000"
	}
	cfg.APIConfig.Timeout = getEnvDurationOrDefault("JOURNAL_API_TIMEOUT", orDuration(cfg.APIConfig.Timeout, 15*time.Second))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8090))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "127.0.0.1"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "http://localhost:5173"))
	cfg.ServerConfig.StaticFilesPath = getEnvOrDefault("SERVER_STATIC_PATH", orString(cfg.ServerConfig.StaticFilesPath, "./web/dist"))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 15))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 330))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Session config
	cfg.SessionConfig.Backend = getEnvOrDefault("SESSION_BACKEND", orString(cfg.SessionConfig.Backend, "file"))
	cfg.SessionConfig.FilePath = getEnvOrDefault("SESSION_FILE", orString(cfg.SessionConfig.FilePath, defaultSessionFile()))
	cfg.SessionConfig.SealKey = getEnvOrDefault("SESSION_SEAL_KEY", cfg.SessionConfig.SealKey)
	cfg.SessionConfig.KeyPrefix = getEnvOrDefault("SESSION_KEY_PREFIX", orString(cfg.SessionConfig.KeyPrefix, "journal:session:"))

	// Polling intervals
	cfg.PollingConfig.Notifications = getEnvDurationOrDefault("POLL_NOTIFICATIONS", orDuration(cfg.PollingConfig.Notifications, 30*time.Second))
	cfg.PollingConfig.Leaderboard = getEnvDurationOrDefault("POLL_LEADERBOARD", orDuration(cfg.PollingConfig.Leaderboard, 30*time.Second))
	cfg.PollingConfig.OnlineFriends = getEnvDurationOrDefault("POLL_ONLINE_FRIENDS", orDuration(cfg.PollingConfig.OnlineFriends, 15*time.Second))
	cfg.PollingConfig.CommunityStats = getEnvDurationOrDefault("POLL_COMMUNITY_STATS", orDuration(cfg.PollingConfig.CommunityStats, 5*time.Minute))
	cfg.PollingConfig.MeetingCheck = getEnvDurationOrDefault("POLL_MEETING_CHECK", orDuration(cfg.PollingConfig.MeetingCheck, 3*time.Second))

	cfg.LoungeConfig.ReactionCooldown = getEnvDurationOrDefault("LOUNGE_REACTION_COOLDOWN", orDuration(cfg.LoungeConfig.ReactionCooldown, 300*time.Millisecond))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "trade-journal/login"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	return &config, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".journal-session.json"
	}
	return filepath.Join(dir, "trade-journal", "session.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// AllowedOriginList splits the comma separated origin setting
func (c ServerConfig) AllowedOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		APIConfig: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 15 * time.Second,
		},
		ServerConfig: ServerConfig{
			Port:            8090,
			Host:            "127.0.0.1",
			AllowedOrigins:  "http://localhost:5173",
			StaticFilesPath: "./web/dist",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		SessionConfig: SessionConfig{
			Backend:  "file",
			FilePath: defaultSessionFile(),
		},
		PollingConfig: PollingConfig{
			Notifications:  30 * time.Second,
			Leaderboard:    30 * time.Second,
			OnlineFriends:  15 * time.Second,
			CommunityStats: 5 * time.Minute,
			MeetingCheck:   3 * time.Second,
		},
		LoungeConfig: LoungeConfig{ReactionCooldown: 300 * time.Millisecond},
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
