package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Auth      AuthConfig      `json:"auth"`
	Logging   LoggingConfig   `json:"logging"`
	Embedding EmbeddingConfig `json:"embedding"`
	Limits    LimitsConfig    `json:"limits"`
	Indexing  IndexingConfig  `json:"indexing"`
	Webhooks  WebhookConfig   `json:"webhooks"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ReadTimeout    int    `json:"read_timeout"`
	WriteTimeout   int    `json:"write_timeout"`
	IdleTimeout    int    `json:"idle_timeout"`
	RequestTimeout int    `json:"request_timeout"`
	MaxBodyBytes   int64  `json:"max_body_bytes"`
	Debug          bool   `json:"debug"`
	BaseURL        string `json:"base_url"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

// RedisConfig holds configuration for rate-limit counters, the anti-scan
// tracker, session context, and the document index cache.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	JWTExpiration  int      `json:"jwt_expiration"`
	InternalSecret string   `json:"internal_secret"`
	AllowedOrigins []string `json:"allowed_origins"`

	// ScanBlockThreshold failed validations within ScanBlockWindow seconds
	// block the key prefix for ScanBlockTTL seconds.
	ScanBlockThreshold int `json:"scan_block_threshold"`
	ScanBlockWindow    int `json:"scan_block_window"`
	ScanBlockTTL       int `json:"scan_block_ttl"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// EmbeddingConfig holds configuration for the embedding provider.
type EmbeddingConfig struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	FallbackModel  string `json:"fallback_model"`
	Dimensions     int    `json:"dimensions"`
	Timeout        int    `json:"timeout"`
	BreakerMaxFail int    `json:"breaker_max_fail"`
}

// LimitsConfig holds the table-driven plan limits and the per-IP limiter.
type LimitsConfig struct {
	IPRequestsPerMinute int `json:"ip_requests_per_minute"`

	FreeRateLimit       int `json:"free_rate_limit"`
	ProRateLimit        int `json:"pro_rate_limit"`
	TeamRateLimit       int `json:"team_rate_limit"`
	EnterpriseRateLimit int `json:"enterprise_rate_limit"`
	PartnerRateLimit    int `json:"partner_rate_limit"`

	FreeMonthlyQueries       int `json:"free_monthly_queries"`
	ProMonthlyQueries        int `json:"pro_monthly_queries"`
	TeamMonthlyQueries       int `json:"team_monthly_queries"`
	EnterpriseMonthlyQueries int `json:"enterprise_monthly_queries"`
}

type IndexingConfig struct {
	ChunkTokens   int `json:"chunk_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
	MaxRetries    int `json:"max_retries"`
	PollInterval  int `json:"poll_interval"`
}

type WebhookConfig struct {
	MaxAttempts int `json:"max_attempts"`
	Timeout     int `json:"timeout"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			RequestTimeout: getEnvAsInt("SERVER_REQUEST_TIMEOUT", 30),
			MaxBodyBytes:   int64(getEnvAsInt("SERVER_MAX_BODY_BYTES", 1<<20)),
			Debug:          getEnvAsBool("DEBUG", false),
			BaseURL:        getEnv("SERVER_BASE_URL", "https://api.snipara.com"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "snipara"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "snipara"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 3600),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
			JWTExpiration:      getEnvAsInt("JWT_EXPIRATION", 3600),
			InternalSecret:     getEnv("INTERNAL_SECRET", ""),
			AllowedOrigins:     getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ScanBlockThreshold: getEnvAsInt("SCAN_BLOCK_THRESHOLD", 10),
			ScanBlockWindow:    getEnvAsInt("SCAN_BLOCK_WINDOW", 300),
			ScanBlockTTL:       getEnvAsInt("SCAN_BLOCK_TTL", 3600),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Embedding: EmbeddingConfig{
			Provider:       getEnv("EMBEDDING_PROVIDER", "openai"),
			APIKey:         getEnv("EMBEDDING_API_KEY", ""),
			Model:          getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
			FallbackModel:  getEnv("EMBEDDING_FALLBACK_MODEL", "text-embedding-3-small"),
			Dimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 1024),
			Timeout:        getEnvAsInt("EMBEDDING_TIMEOUT", 30),
			BreakerMaxFail: getEnvAsInt("EMBEDDING_BREAKER_MAX_FAIL", 5),
		},
		Limits: LimitsConfig{
			IPRequestsPerMinute:      getEnvAsInt("IP_REQUESTS_PER_MINUTE", 120),
			FreeRateLimit:            getEnvAsInt("RATE_LIMIT_FREE", 10),
			ProRateLimit:             getEnvAsInt("RATE_LIMIT_PRO", 60),
			TeamRateLimit:            getEnvAsInt("RATE_LIMIT_TEAM", 120),
			EnterpriseRateLimit:      getEnvAsInt("RATE_LIMIT_ENTERPRISE", 600),
			PartnerRateLimit:         getEnvAsInt("RATE_LIMIT_PARTNER", 300),
			FreeMonthlyQueries:       getEnvAsInt("MONTHLY_QUERIES_FREE", 500),
			ProMonthlyQueries:        getEnvAsInt("MONTHLY_QUERIES_PRO", 10000),
			TeamMonthlyQueries:       getEnvAsInt("MONTHLY_QUERIES_TEAM", 50000),
			EnterpriseMonthlyQueries: getEnvAsInt("MONTHLY_QUERIES_ENTERPRISE", 1000000),
		},
		Indexing: IndexingConfig{
			ChunkTokens:   getEnvAsInt("INDEX_CHUNK_TOKENS", 1000),
			OverlapTokens: getEnvAsInt("INDEX_OVERLAP_TOKENS", 200),
			MaxRetries:    getEnvAsInt("INDEX_MAX_RETRIES", 3),
			PollInterval:  getEnvAsInt("INDEX_POLL_INTERVAL", 5),
		},
		Webhooks: WebhookConfig{
			MaxAttempts: getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 3),
			Timeout:     getEnvAsInt("WEBHOOK_TIMEOUT", 10),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func validateConfig(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}

	if !config.Server.Debug && config.Auth.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT secret must be changed from default value (JWT_SECRET)")
	}

	if config.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive (EMBEDDING_DIMENSIONS)")
	}

	if config.Indexing.OverlapTokens >= config.Indexing.ChunkTokens {
		return fmt.Errorf("chunk overlap must be smaller than chunk size")
	}

	return nil
}

// RateLimitForPlan returns the per-minute request ceiling for a plan name.
// Integrator clients are billed on the PARTNER tier regardless of plan.
func (c *Config) RateLimitForPlan(plan string) int {
	switch plan {
	case "PRO":
		return c.Limits.ProRateLimit
	case "TEAM":
		return c.Limits.TeamRateLimit
	case "ENTERPRISE":
		return c.Limits.EnterpriseRateLimit
	case "PARTNER":
		return c.Limits.PartnerRateLimit
	default:
		return c.Limits.FreeRateLimit
	}
}

// MonthlyQueriesForPlan returns the month-to-date query ceiling for a plan.
func (c *Config) MonthlyQueriesForPlan(plan string) int {
	switch plan {
	case "PRO":
		return c.Limits.ProMonthlyQueries
	case "TEAM":
		return c.Limits.TeamMonthlyQueries
	case "ENTERPRISE", "PARTNER":
		return c.Limits.EnterpriseMonthlyQueries
	default:
		return c.Limits.FreeMonthlyQueries
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
