package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OTP       OTPConfig       `mapstructure:"otp"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type OTPConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	IssueLimit       int64         `mapstructure:"issue_limit"`
	IssueLimitWindow time.Duration `mapstructure:"issue_limit_window"`
}

type ApprovalConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type WhitelistConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type AdminConfig struct {
	// DirectAdjustThreshold is the absolute adjustment size above which a
	// non-treasury balance correction requires OTP verification.
	DirectAdjustThreshold string `mapstructure:"direct_adjust_threshold"`
}

type DeliveryConfig struct {
	// URL of the external delivery collaborator receiving (identifier, code,
	// purpose) payloads. Empty disables HTTP dispatch; codes are then only
	// logged at debug level.
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SweepConfig struct {
	ApprovalSpec string `mapstructure:"approval_spec"` // cron spec for approval expiry
	OTPSpec      string `mapstructure:"otp_spec"`      // cron spec for challenge cleanup
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: TRS_ (Treasury Core).
// Nested keys use underscore: TRS_DATABASE_HOST, TRS_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "treasury_core")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "treasury-core")
	v.SetDefault("otp.ttl", "10m")
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.issue_limit", 5)
	v.SetDefault("otp.issue_limit_window", "1h")
	v.SetDefault("approval.ttl", "1h")
	v.SetDefault("whitelist.cooldown", "24h")
	v.SetDefault("admin.direct_adjust_threshold", "1000")
	v.SetDefault("delivery.url", "")
	v.SetDefault("delivery.timeout", "10s")
	v.SetDefault("sweep.approval_spec", "* * * * *")
	v.SetDefault("sweep.otp_spec", "0 * * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: TRS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TRS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present; env vars alone can suffice
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
