package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrConfigurationMissing is returned by Load when a value the process cannot start without is absent.
var ErrConfigurationMissing = errors.New("required configuration is missing")

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	BlacklistBackendRedis  = "redis"
	BlacklistBackendMemory = "memory"
)

type Config struct {
	Server    ServerConfig    `json:"server" envPrefix:"SERVER_" validate:"required"`
	Storage   StorageConfig   `json:"storage" envPrefix:"STORAGE_" validate:"required"`
	Database  DatabaseConfig  `json:"database" envPrefix:"DB_" validate:"required"`
	Redis     RedisConfig     `json:"redis" envPrefix:"REDIS_" validate:"required"`
	Blacklist BlacklistConfig `json:"blacklist" envPrefix:"BLACKLIST_" validate:"required"`
	JWT       JWTConfig       `json:"jwt" envPrefix:"JWT_" validate:"required"`
	Cookie    CookieConfig    `json:"cookie" envPrefix:"COOKIE_" validate:"required"`
	Cleanup   CleanupConfig   `json:"cleanup" envPrefix:"CLEANUP_" validate:"required"`
	WebSocket WebSocketConfig `json:"websocket" envPrefix:"WS_"`
	Log       LogConfig       `json:"log" envPrefix:"LOG_" validate:"required"`
}

type ServerConfig struct {
	Port            string   `json:"port" env:"PORT" validate:"required,numeric"`
	Host            string   `json:"host" env:"HOST" validate:"required,hostname|ip"`
	ReadTimeout     Duration `json:"read_timeout" env:"READ_TIMEOUT" validate:"required,duration_gt0"`
	WriteTimeout    Duration `json:"write_timeout" env:"WRITE_TIMEOUT" validate:"required,duration_gt0"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"required,duration_gt0"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type StorageConfig struct {
	Driver string `json:"driver" env:"DRIVER" validate:"required,oneof=postgres memory"`
}

type DatabaseConfig struct {
	Host           string `json:"host" env:"HOST" validate:"required,hostname|ip"`
	Port           string `json:"port" env:"PORT" validate:"required,numeric"`
	User           string `json:"user" env:"USER" validate:"required"`
	Password       string `json:"password" env:"PASSWORD" validate:"required"`
	DBName         string `json:"db_name" env:"NAME" validate:"required"`
	SSLMode        string `json:"ssl_mode" env:"SSL_MODE" validate:"required,oneof=disable require verify-ca verify-full"`
	MigrationsPath string `json:"migrations_path" env:"MIGRATIONS_PATH" validate:"required"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `json:"addr" env:"ADDR" validate:"required,hostname_port"`
	Password string `json:"password" env:"PASSWORD" validate:"omitempty"`
	DB       int    `json:"db" env:"DB" validate:"gte=0"`
}

type BlacklistConfig struct {
	Backend string `json:"backend" env:"BACKEND" validate:"required,oneof=redis memory"`
}

type JWTConfig struct {
	AccessSecret       string   `json:"access_secret" env:"ACCESS_SECRET" validate:"required"`
	RefreshSecret      string   `json:"refresh_secret" env:"REFRESH_SECRET" validate:"required,nefield=AccessSecret"`
	AccessTokenTTL     Duration `json:"access_token_ttl" env:"ACCESS_TOKEN_TTL" validate:"required,duration_gt0"`
	RefreshTokenTTL    Duration `json:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" validate:"required,duration_gt0"`
	EnforceFingerprint bool     `json:"enforce_fingerprint" env:"ENFORCE_FINGERPRINT"`
}

type CookieConfig struct {
	Name   string `json:"name" env:"NAME" validate:"required"`
	Secure bool   `json:"secure" env:"SECURE"`
	Domain string `json:"domain" env:"DOMAIN"`
}

type CleanupConfig struct {
	Interval Duration `json:"interval" env:"INTERVAL" validate:"required,duration_gt0"`
	// Grace keeps expired records around for a while after expiry. Zero purges as soon as they expire.
	Grace Duration `json:"grace" env:"GRACE" validate:"duration_gte0"`
}

type WebSocketConfig struct {
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type LogConfig struct {
	Level string `json:"level" env:"LEVEL" validate:"required,oneof=debug info warn error"`
}

// Std converts the config duration back to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
