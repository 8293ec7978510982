package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port               int      `json:"port"`
	Environment        string   `json:"environment"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	// PostgreSQL configuration
	DatabaseURL      string `json:"-"`
	DatabaseMaxConns int    `json:"database_max_conns"`
	DatabaseMinConns int    `json:"database_min_conns"`

	// MongoDB configuration (HTTP access trail)
	MongoURI               string `json:"mongo_uri"`
	MongoDatabase          string `json:"mongo_database"`
	AccessLogCollection    string `json:"mongo_access_log_collection"`
	AccessLogEnabled       bool   `json:"access_log_enabled"`
	AccessLogWorkers       int    `json:"access_log_workers"`
	AccessLogBufferSize    int    `json:"access_log_buffer_size"`
	AccessLogRetentionDays int    `json:"access_log_retention_days"`

	// Redis configuration
	RedisURI      string `json:"redis_uri"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Authentication
	JWTSecret       string        `json:"-"`
	JWTTTL          time.Duration `json:"jwt_ttl"`
	JWTIssuer       string        `json:"jwt_issuer"`
	LoginRateLimit  int           `json:"login_rate_limit"`
	LoginRateWindow time.Duration `json:"login_rate_window"`

	// Document storage
	StorageBackend string `json:"storage_backend"`
	UploadDir      string `json:"upload_dir"`
	UploadMaxBytes int64  `json:"upload_max_bytes"`
	S3Bucket       string `json:"s3_bucket"`
	AWSRegion      string `json:"aws_region"`
	AWSEndpointURL string `json:"aws_endpoint_url"`

	// Request lifecycle defaults
	DefaultRequestingCountryID int64  `json:"default_requesting_country_id"`
	DefaultCountryCode         string `json:"default_country_code"`
	ResponseTargetDays         int    `json:"response_target_days"`

	// Tracing configuration
	ServiceName        string  `json:"service_name"`
	ServiceVersion     string  `json:"service_version"`
	TracingEnabled     bool    `json:"tracing_enabled"`
	TracingEndpoint    string  `json:"tracing_endpoint"`
	TracingSampleRatio float64 `json:"tracing_sample_ratio"`
}

var (
	AppConfig *Config
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}

	jwtTTL, err := time.ParseDuration(getEnvOrDefault("JWT_TTL", "1h"))
	if err != nil {
		return fmt.Errorf("invalid JWT_TTL: %w", err)
	}

	uploadMax, err := strconv.ParseInt(getEnvOrDefault("UPLOAD_MAX_BYTES", "20971520"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid UPLOAD_MAX_BYTES: %w", err)
	}

	storageBackend := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", "local"))
	if storageBackend != "local" && storageBackend != "s3" {
		return fmt.Errorf("invalid STORAGE_BACKEND %q: want local or s3", storageBackend)
	}
	s3Bucket := os.Getenv("S3_BUCKET")
	if storageBackend == "s3" && s3Bucket == "" {
		return fmt.Errorf("S3_BUCKET environment variable is required when STORAGE_BACKEND=s3")
	}

	sampleRatio, err := strconv.ParseFloat(getEnvOrDefault("TRACING_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		return fmt.Errorf("invalid TRACING_SAMPLE_RATIO: %w", err)
	}
	if sampleRatio < 0 || sampleRatio > 1 {
		return fmt.Errorf("invalid TRACING_SAMPLE_RATIO %g: want a value between 0 and 1", sampleRatio)
	}

	AppConfig = &Config{
		// Server configuration
		Port:               port,
		Environment:        getEnvOrDefault("ENVIRONMENT", "development"),
		CORSAllowedOrigins: parseCommaSeparatedList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://127.0.0.1:8080,http://localhost:3000")),

		// PostgreSQL configuration
		DatabaseURL:      DatabaseURLFromEnv(),
		DatabaseMaxConns: getEnvAsIntOrDefault("DATABASE_MAX_CONNS", 10),
		DatabaseMinConns: getEnvAsIntOrDefault("DATABASE_MIN_CONNS", 1),

		// MongoDB configuration
		MongoURI:               getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:          getEnvOrDefault("MONGODB_DATABASE", "nis_portal"),
		AccessLogCollection:    getEnvOrDefault("MONGODB_ACCESS_LOG_COLLECTION", "access_logs"),
		AccessLogEnabled:       getEnvAsBoolOrDefault("ACCESS_LOG_ENABLED", true),
		AccessLogWorkers:       getEnvAsIntOrDefault("ACCESS_LOG_WORKERS", 2),
		AccessLogBufferSize:    getEnvAsIntOrDefault("ACCESS_LOG_BUFFER_SIZE", 1000),
		AccessLogRetentionDays: getEnvAsIntOrDefault("ACCESS_LOG_RETENTION_DAYS", 365),

		// Redis configuration
		RedisURI:      getEnvOrDefault("REDIS_URI", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		// Authentication
		JWTSecret:       jwtSecret,
		JWTTTL:          jwtTTL,
		JWTIssuer:       getEnvOrDefault("JWT_ISSUER", "nis-portal"),
		LoginRateLimit:  getEnvAsIntOrDefault("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getEnvAsDurationOrDefault("LOGIN_RATE_WINDOW", 15*time.Minute),

		// Document storage
		StorageBackend: storageBackend,
		UploadDir:      getEnvOrDefault("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: uploadMax,
		S3Bucket:       s3Bucket,
		AWSRegion:      getEnvOrDefault("AWS_REGION", "us-east-1"),
		AWSEndpointURL: os.Getenv("AWS_ENDPOINT_URL"),

		// Request lifecycle defaults
		DefaultRequestingCountryID: int64(getEnvAsIntOrDefault("DEFAULT_REQUESTING_COUNTRY_ID", 1)),
		DefaultCountryCode:         getEnvOrDefault("DEFAULT_COUNTRY_CODE", "CAR"),
		ResponseTargetDays:         getEnvAsIntOrDefault("REQUEST_RESPONSE_DAYS", 30),

		// Tracing configuration
		ServiceName:        getEnvOrDefault("SERVICE_NAME", "nis-portal-api"),
		ServiceVersion:     getEnvOrDefault("SERVICE_VERSION", buildVersion()),
		TracingEnabled:     getEnvAsBoolOrDefault("TRACING_ENABLED", false),
		TracingEndpoint:    getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317"),
		TracingSampleRatio: sampleRatio,
	}

	return nil
}

// DatabaseURLFromEnv returns DATABASE_URL or assembles one from the discrete
// DATABASE_* variables.
func DatabaseURLFromEnv() string {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return dsn
	}
	user := getEnvOrDefault("DATABASE_USER", "nis")
	host := getEnvOrDefault("DATABASE_HOST", "localhost")
	port := getEnvOrDefault("DATABASE_PORT", "5432")
	if _, err := strconv.Atoi(port); err != nil {
		port = "5432"
	}
	name := getEnvOrDefault("DATABASE_NAME", "nis_portal")
	sslmode := getEnvOrDefault("DATABASE_SSLMODE", "disable")

	credentials := user
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		credentials = user + ":" + password
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", credentials, host, port, name, sslmode)
}

// buildVersion reports the main module version stamped by the Go toolchain,
// or "dev" for local builds.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the variable parsed as int, or the default if
// unset or unparseable.
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseCommaSeparatedList splits a comma separated value, dropping blanks.
func parseCommaSeparatedList(value string) []string {
	result := []string{}
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
