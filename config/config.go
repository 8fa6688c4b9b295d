package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Manager   ManagerConfig   `json:"manager"`
	Execution ExecutionConfig `json:"execution"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Logging   LoggingConfig   `json:"logging"`
}

// ManagerConfig holds the portfolio manager automation configuration.
// Threshold fields are percentages (e.g. 5.0 means 5%).
type ManagerConfig struct {
	Enabled                bool               `json:"enabled"`
	AutoRebalance          bool               `json:"auto_rebalance"`
	AutoProfitTaking       bool               `json:"auto_profit_taking"`
	MonitorIntervalSecs    int                `json:"monitor_interval_secs"`
	RebalanceThreshold     float64            `json:"rebalance_threshold"`
	ProfitTakingThreshold  float64            `json:"profit_taking_threshold"`
	RiskPerTrade           float64            `json:"risk_per_trade"`
	TargetAllocations      map[string]float64 `json:"target_allocations"`
	MediumBatchDelaySecs   int                `json:"medium_batch_delay_secs"`
	RebalanceCooldownHours int                `json:"rebalance_cooldown_hours"`
}

// ManagerConfigPatch carries a partial configuration update. Nil fields
// are left untouched by the merge.
type ManagerConfigPatch struct {
	Enabled               *bool               `json:"enabled,omitempty"`
	AutoRebalance         *bool               `json:"auto_rebalance,omitempty"`
	AutoProfitTaking      *bool               `json:"auto_profit_taking,omitempty"`
	MonitorIntervalSecs   *int                `json:"monitor_interval_secs,omitempty"`
	RebalanceThreshold    *float64            `json:"rebalance_threshold,omitempty"`
	ProfitTakingThreshold *float64            `json:"profit_taking_threshold,omitempty"`
	RiskPerTrade          *float64            `json:"risk_per_trade,omitempty"`
	TargetAllocations     *map[string]float64 `json:"target_allocations,omitempty"`
}

// Merge applies the non-nil fields of the patch and returns the updated config.
func (c ManagerConfig) Merge(p ManagerConfigPatch) ManagerConfig {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.AutoRebalance != nil {
		c.AutoRebalance = *p.AutoRebalance
	}
	if p.AutoProfitTaking != nil {
		c.AutoProfitTaking = *p.AutoProfitTaking
	}
	if p.MonitorIntervalSecs != nil && *p.MonitorIntervalSecs > 0 {
		c.MonitorIntervalSecs = *p.MonitorIntervalSecs
	}
	if p.RebalanceThreshold != nil && *p.RebalanceThreshold > 0 {
		c.RebalanceThreshold = *p.RebalanceThreshold
	}
	if p.ProfitTakingThreshold != nil && *p.ProfitTakingThreshold > 0 {
		c.ProfitTakingThreshold = *p.ProfitTakingThreshold
	}
	if p.RiskPerTrade != nil && *p.RiskPerTrade > 0 {
		c.RiskPerTrade = *p.RiskPerTrade
	}
	if p.TargetAllocations != nil {
		targets := make(map[string]float64, len(*p.TargetAllocations))
		for sym, pct := range *p.TargetAllocations {
			targets[sym] = pct
		}
		c.TargetAllocations = targets
	}
	return c
}

// Fields lists the names of the fields the patch would change.
func (p ManagerConfigPatch) Fields() []string {
	var fields []string
	if p.Enabled != nil {
		fields = append(fields, "enabled")
	}
	if p.AutoRebalance != nil {
		fields = append(fields, "auto_rebalance")
	}
	if p.AutoProfitTaking != nil {
		fields = append(fields, "auto_profit_taking")
	}
	if p.MonitorIntervalSecs != nil {
		fields = append(fields, "monitor_interval_secs")
	}
	if p.RebalanceThreshold != nil {
		fields = append(fields, "rebalance_threshold")
	}
	if p.ProfitTakingThreshold != nil {
		fields = append(fields, "profit_taking_threshold")
	}
	if p.RiskPerTrade != nil {
		fields = append(fields, "risk_per_trade")
	}
	if p.TargetAllocations != nil {
		fields = append(fields, "target_allocations")
	}
	return fields
}

// MonitorInterval returns the tick interval with a sane floor applied.
func (c ManagerConfig) MonitorInterval() time.Duration {
	secs := c.MonitorIntervalSecs
	if secs < 5 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// MediumBatchDelay returns the delay before a deferred medium-priority batch runs.
func (c ManagerConfig) MediumBatchDelay() time.Duration {
	secs := c.MediumBatchDelaySecs
	if secs <= 0 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}

// RebalanceCooldown returns the minimum interval between rebalance rounds.
func (c ManagerConfig) RebalanceCooldown() time.Duration {
	hours := c.RebalanceCooldownHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// ExecutionConfig holds the connection settings for the external
// order-execution service.
type ExecutionConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	TimeoutSec int    `json:"timeout_sec"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
	ProductionMode  bool   `json:"production_mode"`
}

// DatabaseConfig holds PostgreSQL configuration for the action audit log.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for position snapshot caching.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

func Load(path string) (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile(path)
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Manager config
	cfg.Manager.Enabled = getEnvOrDefault("MANAGER_ENABLED", boolString(cfg.Manager.Enabled)) == "true"
	cfg.Manager.AutoRebalance = getEnvOrDefault("MANAGER_AUTO_REBALANCE", "true") == "true"
	cfg.Manager.AutoProfitTaking = getEnvOrDefault("MANAGER_AUTO_PROFIT_TAKING", "true") == "true"
	cfg.Manager.MonitorIntervalSecs = getEnvIntOrDefault("MANAGER_MONITOR_INTERVAL_SECS", orInt(cfg.Manager.MonitorIntervalSecs, 60))
	cfg.Manager.RebalanceThreshold = getEnvFloatOrDefault("MANAGER_REBALANCE_THRESHOLD", orFloat(cfg.Manager.RebalanceThreshold, 5.0))
	cfg.Manager.ProfitTakingThreshold = getEnvFloatOrDefault("MANAGER_PROFIT_TAKING_THRESHOLD", orFloat(cfg.Manager.ProfitTakingThreshold, 10.0))
	cfg.Manager.RiskPerTrade = getEnvFloatOrDefault("MANAGER_RISK_PER_TRADE", orFloat(cfg.Manager.RiskPerTrade, 1.5))
	cfg.Manager.MediumBatchDelaySecs = getEnvIntOrDefault("MANAGER_MEDIUM_BATCH_DELAY_SECS", orInt(cfg.Manager.MediumBatchDelaySecs, 5))
	cfg.Manager.RebalanceCooldownHours = getEnvIntOrDefault("MANAGER_REBALANCE_COOLDOWN_HOURS", orInt(cfg.Manager.RebalanceCooldownHours, 24))

	// Execution service config
	cfg.Execution.BaseURL = getEnvOrDefault("EXECUTION_BASE_URL", cfg.Execution.BaseURL)
	if cfg.Execution.BaseURL == "" {
		cfg.Execution.BaseURL = "http://localhost:9090"
	}
	cfg.Execution.APIKey = getEnvOrDefault("EXECUTION_API_KEY", cfg.Execution.APIKey)
	cfg.Execution.TimeoutSec = getEnvIntOrDefault("EXECUTION_TIMEOUT_SEC", orInt(cfg.Execution.TimeoutSec, 10))

	// Logging config
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.Logging.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Server config
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.Server.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.Server.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.Server.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Database config
	cfg.Database.Enabled = getEnvOrDefault("DB_ENABLED", boolString(cfg.Database.Enabled)) == "true"
	cfg.Database.Host = getEnvOrDefault("DB_HOST", orString(cfg.Database.Host, "localhost"))
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.Database.Port, 5432))
	cfg.Database.User = getEnvOrDefault("DB_USER", orString(cfg.Database.User, "postgres"))
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", orString(cfg.Database.Database, "asset_manager"))
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.Database.SSLMode, "disable"))

	// Redis config
	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.Redis.Enabled)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", orString(cfg.Redis.Address, "localhost:6379"))
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.Redis.PoolSize, 10))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		Manager: ManagerConfig{
			Enabled:               false,
			AutoRebalance:         true,
			AutoProfitTaking:      true,
			MonitorIntervalSecs:   60,
			RebalanceThreshold:    5.0,
			ProfitTakingThreshold: 10.0,
			RiskPerTrade:          1.5,
			TargetAllocations: map[string]float64{
				"BTCUSDT": 40.0,
				"ETHUSDT": 30.0,
				"SOLUSDT": 10.0,
			},
			MediumBatchDelaySecs:   5,
			RebalanceCooldownHours: 24,
		},
		Execution: ExecutionConfig{
			BaseURL:    "http://localhost:9090",
			TimeoutSec: 10,
		},
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
