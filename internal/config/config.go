package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Cedar    CedarConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Approval ApprovalConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds local ticket-store connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// CedarConfig holds connection values for the external CMMS database plus
// workflow initiation parameters.
type CedarConfig struct {
	DSN                string
	MaxConns           int32
	CallTimeoutSeconds int
	WorkflowTemplate   string
	WorkflowFirstStep  string
	MappingVersion     string
	SourceSystemCode   string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters. Identity management is an
// external collaborator; this service only verifies bearer tokens.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// ApprovalConfig configures the guard level each approval-gated action
// requires and the authorized-person cache.
type ApprovalConfig struct {
	AcceptLevel      int
	EscalateLevel    int
	ReviewLevel      int
	CompleteLevel    int
	CloseLevel       int
	RejectLevel      int
	RejectFinalLevel int
	ReopenLevel      int
	CacheTTLSeconds  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "maintenance-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Cedar: CedarConfig{
			DSN:                os.Getenv("CEDAR_DSN"),
			MaxConns:           int32(getEnvAsInt("CEDAR_MAX_CONNS", 4)),
			CallTimeoutSeconds: getEnvAsInt("CEDAR_CALL_TIMEOUT_SECONDS", 10),
			WorkflowTemplate:   getEnv("CEDAR_WORKFLOW_TEMPLATE", "MAINT-STD"),
			WorkflowFirstStep:  getEnv("CEDAR_WORKFLOW_FIRST_STEP", "L2_APPROVAL"),
			MappingVersion:     getEnv("CEDAR_MAPPING_VERSION", "v1"),
			SourceSystemCode:   getEnv("CEDAR_SOURCE_SYSTEM", "TICKETING"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Approval: ApprovalConfig{
			AcceptLevel:      getEnvAsInt("APPROVAL_ACCEPT_LEVEL", 2),
			EscalateLevel:    getEnvAsInt("APPROVAL_ESCALATE_LEVEL", 3),
			ReviewLevel:      getEnvAsInt("APPROVAL_REVIEW_LEVEL", 3),
			CompleteLevel:    getEnvAsInt("APPROVAL_COMPLETE_LEVEL", 3),
			CloseLevel:       getEnvAsInt("APPROVAL_CLOSE_LEVEL", 3),
			RejectLevel:      getEnvAsInt("APPROVAL_REJECT_LEVEL", 2),
			RejectFinalLevel: getEnvAsInt("APPROVAL_REJECT_FINAL_LEVEL", 3),
			ReopenLevel:      getEnvAsInt("APPROVAL_REOPEN_LEVEL", 2),
			CacheTTLSeconds:  getEnvAsInt("APPROVAL_CACHE_TTL_SECONDS", 60),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CallTimeout returns the bound applied to each Cedar call.
func (c CedarConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// CacheTTL returns the authorized-person cache lifetime.
func (a ApprovalConfig) CacheTTL() time.Duration {
	if a.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
