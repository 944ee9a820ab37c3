package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Evaluator     EvaluatorConfig     `mapstructure:"evaluator"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Diagnosis     DiagnosisConfig     `mapstructure:"diagnosis"`
	Remediation   RemediationConfig   `mapstructure:"remediation"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type EvaluatorConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ClearWindows     int           `mapstructure:"clear_windows"`
	RuleCacheTTL     time.Duration `mapstructure:"rule_cache_ttl"`
}

type EscalationConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type NotificationsConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	DefaultChannelID int64         `mapstructure:"default_channel_id"`
	DefaultCooldown  time.Duration `mapstructure:"default_cooldown"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
}

type DiagnosisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RemediationConfig struct {
	Workers        int           `mapstructure:"workers"`
	AutoApproveLow bool          `mapstructure:"auto_approve_low"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	RunbooksPath   string        `mapstructure:"runbooks_path"`
	SSH            SSHConfig     `mapstructure:"ssh"`
}

type SSHConfig struct {
	User           string        `mapstructure:"user"`
	Port           int           `mapstructure:"port"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RetentionConfig struct {
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	ResolvedAge   time.Duration `mapstructure:"resolved_age"`
	LogAge        time.Duration `mapstructure:"log_age"`
}

type WebSocketConfig struct {
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from configs/config.yaml with environment
// variable overrides.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("diagnosis.url", "DIAGNOSIS_URL")
	viper.BindEnv("diagnosis.api_key", "DIAGNOSIS_API_KEY")
	viper.BindEnv("remediation.ssh.user", "REMEDIATION_SSH_USER")
	viper.BindEnv("remediation.ssh.private_key_path", "REMEDIATION_SSH_KEY")
	viper.BindEnv("remediation.ssh.password", "REMEDIATION_SSH_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file is optional, defaults + env carry a dev setup.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3100)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.path", "./data/opswatch.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	viper.SetDefault("evaluator.tick_interval", "15s")
	viper.SetDefault("evaluator.fetch_timeout", "10s")
	viper.SetDefault("evaluator.failure_threshold", 5)
	viper.SetDefault("evaluator.clear_windows", 3)
	viper.SetDefault("evaluator.rule_cache_ttl", "30s")

	viper.SetDefault("escalation.sweep_interval", "10s")

	viper.SetDefault("notifications.workers", 4)
	viper.SetDefault("notifications.queue_size", 256)
	viper.SetDefault("notifications.default_cooldown", "300s")
	viper.SetDefault("notifications.max_retries", 3)
	viper.SetDefault("notifications.retry_backoff", "2s")
	viper.SetDefault("notifications.send_timeout", "10s")

	viper.SetDefault("diagnosis.enabled", false)
	viper.SetDefault("diagnosis.timeout", "20s")

	viper.SetDefault("remediation.workers", 2)
	viper.SetDefault("remediation.auto_approve_low", true)
	viper.SetDefault("remediation.command_timeout", "60s")
	viper.SetDefault("remediation.runbooks_path", "./configs/runbooks.yaml")
	viper.SetDefault("remediation.ssh.port", 22)
	viper.SetDefault("remediation.ssh.connect_timeout", "10s")

	viper.SetDefault("retention.sweep_schedule", "0 3 * * *")
	viper.SetDefault("retention.resolved_age", "720h")
	viper.SetDefault("retention.log_age", "2160h")

	viper.SetDefault("websocket.read_buffer_size", 1024)
	viper.SetDefault("websocket.write_buffer_size", 1024)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
