package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	GRPCPort    string
	HTTPPort    string
	CORSOrigins string

	ClassifierAddr    string
	ClassifierTimeout time.Duration

	MaxUploadMB int
	LogLevel    string
	Environment string

	DBDriver   string
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	SQLitePath string

	RedisAddr     string
	RedisPassword string

	JWTSecret    string
	JWTIssuer    string
	TokenTTL     time.Duration
	AuthRequired bool
	BcryptCost   int

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	AtomicDetections    bool
	SingleActiveSession bool
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE.
type fileConfig struct {
	Server struct {
		HTTPPort    string `yaml:"http_port"`
		GRPCPort    string `yaml:"grpc_port"`
		CORSOrigins string `yaml:"cors_origins"`
		MaxUploadMB int    `yaml:"max_upload_mb"`
	} `yaml:"server"`
	Classifier struct {
		Addr    string `yaml:"addr"`
		Timeout string `yaml:"timeout"`
	} `yaml:"classifier"`
	Database struct {
		Driver     string `yaml:"driver"`
		Host       string `yaml:"host"`
		Port       string `yaml:"port"`
		User       string `yaml:"user"`
		Name       string `yaml:"name"`
		SSLMode    string `yaml:"sslmode"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Ledger struct {
		AtomicDetections    *bool `yaml:"atomic_detections"`
		SingleActiveSession *bool `yaml:"single_active_session"`
	} `yaml:"ledger"`
}

func (p *Config) DSN() string {
	if p.DBDriver == DriverSQLite {
		return p.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog is DSN with the password masked.
func (p *Config) DSNForLog() string {
	if p.DBDriver == DriverSQLite {
		return "sqlite3:" + p.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func defaults() *Config {
	return &Config{
		GRPCPort:          "50051",
		HTTPPort:          "8000",
		CORSOrigins:       "*",
		ClassifierAddr:    "localhost:9000",
		ClassifierTimeout: 5 * time.Second,
		MaxUploadMB:       10,
		LogLevel:          "INFO",
		Environment:       "production",
		DBDriver:          DriverSQLite,
		DBHost:            "localhost",
		DBPort:            "5432",
		DBUser:            "postgres",
		DBName:            "drowsiness",
		DBSSLMode:         "disable",
		SQLitePath:        "drowsiness.db",
		JWTSecret:         "dev-secret",
		JWTIssuer:         "drowsyguard",
		TokenTTL:          24 * time.Hour,
		BcryptCost:        12,
		AdminUsername:     "admin",
		AdminEmail:        "admin@drowsyguard.com",
		AdminPassword:     "admin123",
		AtomicDetections:  true,
	}
}

// LoadConfig resolves defaults, then CONFIG_FILE, then .env and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment variables")
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	switch cfg.DBDriver {
	case DriverPostgres, DriverSQLite:
	case "sqlite":
		cfg.DBDriver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDriver == DriverPostgres && cfg.DBPassword == "" {
		slog.Warn("DB_PASSWORD is not set")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.HTTPPort, f.Server.HTTPPort)
	setString(&cfg.GRPCPort, f.Server.GRPCPort)
	setString(&cfg.CORSOrigins, f.Server.CORSOrigins)
	if f.Server.MaxUploadMB > 0 {
		cfg.MaxUploadMB = f.Server.MaxUploadMB
	}
	setString(&cfg.ClassifierAddr, f.Classifier.Addr)
	if f.Classifier.Timeout != "" {
		d, err := time.ParseDuration(f.Classifier.Timeout)
		if err != nil {
			return fmt.Errorf("parse classifier.timeout: %w", err)
		}
		cfg.ClassifierTimeout = d
	}
	setString(&cfg.DBDriver, f.Database.Driver)
	setString(&cfg.DBHost, f.Database.Host)
	setString(&cfg.DBPort, f.Database.Port)
	setString(&cfg.DBUser, f.Database.User)
	setString(&cfg.DBName, f.Database.Name)
	setString(&cfg.DBSSLMode, f.Database.SSLMode)
	setString(&cfg.SQLitePath, f.Database.SQLitePath)
	setString(&cfg.RedisAddr, f.Redis.Addr)
	if f.Ledger.AtomicDetections != nil {
		cfg.AtomicDetections = *f.Ledger.AtomicDetections
	}
	if f.Ledger.SingleActiveSession != nil {
		cfg.SingleActiveSession = *f.Ledger.SingleActiveSession
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.GRPCPort = getEnv("GRPC_PORT", cfg.GRPCPort)
	cfg.HTTPPort = getEnv("HTTP_PORT", getEnv("PORT", cfg.HTTPPort))
	cfg.CORSOrigins = getEnv("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.ClassifierAddr = getEnv("CLASSIFIER_ADDR", getEnv("PYTHON_SERVICE_URL", cfg.ClassifierAddr))
	cfg.ClassifierTimeout = getEnvDuration("CLASSIFIER_TIMEOUT", cfg.ClassifierTimeout)
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.AuthRequired = getEnvBool("AUTH_REQUIRED", cfg.AuthRequired)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", cfg.BcryptCost)

	cfg.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminEmail = getEnv("ADMIN_EMAIL", cfg.AdminEmail)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)

	cfg.AtomicDetections = getEnvBool("LEDGER_ATOMIC_DETECTIONS", cfg.AtomicDetections)
	cfg.SingleActiveSession = getEnvBool("LEDGER_SINGLE_ACTIVE_SESSION", cfg.SingleActiveSession)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("5s") or a KEY_SECONDS integer.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultVal
}
