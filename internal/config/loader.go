package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Load sets default values to the Config struct, then tries to override them with a .json config file
// (the path is stored in the CONFIG_PATH environment variable), then with a .env file (ENV_FILE, ".env" by
// default) and finally with the process environment. The result is validated; missing secrets are reported
// as ErrConfigurationMissing so the caller can abort startup.
func Load() (*Config, error) {
	var cfg Config
	setDefaults(&cfg)

	if err := loadFromJSON(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from JSON: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := checkSecrets(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Server = ServerConfig{
		Port:            "8080",
		Host:            "0.0.0.0",
		ReadTimeout:     Duration(30 * time.Second),
		WriteTimeout:    Duration(30 * time.Second),
		ShutdownTimeout: Duration(15 * time.Second),
	}

	cfg.Storage = StorageConfig{Driver: StorageDriverPostgres}

	cfg.Database = DatabaseConfig{
		Host:           "localhost",
		Port:           "5432",
		User:           "postgres",
		Password:       "password",
		DBName:         "auth",
		SSLMode:        "disable",
		MigrationsPath: "migrations",
	}

	cfg.Redis = RedisConfig{
		Addr: "localhost:6379",
	}

	cfg.Blacklist = BlacklistConfig{Backend: BlacklistBackendRedis}

	// Secrets have no defaults on purpose.
	cfg.JWT = JWTConfig{
		AccessTokenTTL:  Duration(15 * time.Minute),
		RefreshTokenTTL: Duration(7 * 24 * time.Hour),
	}

	cfg.Cookie = CookieConfig{
		Name: "refreshToken",
	}

	cfg.Cleanup = CleanupConfig{
		Interval: Duration(24 * time.Hour),
	}

	cfg.Log = LogConfig{Level: "info"}
}

func loadFromJSON(cfg *Config) error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cfg)
}

// loadDotEnv populates the environment from a dotenv file. Variables already set win.
func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// getConfigPath reads path to .json config from CONFIG_PATH env variable
func getConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join("config", "config.json")
}

func checkSecrets(cfg *Config) error {
	var missing []string
	if strings.TrimSpace(cfg.JWT.AccessSecret) == "" {
		missing = append(missing, "JWT_ACCESS_SECRET")
	}
	if strings.TrimSpace(cfg.JWT.RefreshSecret) == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

func validate(cfg *Config) error {
	validate := validator.New()

	// Custom validation for Duration type: must be greater than 0
	validate.RegisterValidation("duration_gt0", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(Duration)
		return ok && d > 0
	})
	validate.RegisterValidation("duration_gte0", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(Duration)
		return ok && d >= 0
	})

	return validate.Struct(cfg)
}
