// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pkordes/travelogue/internal/blob"
)

// Docstore drivers accepted by DOCSTORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Config holds all configuration values for the API server and tripctl.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// DocstoreDriver picks the document store backend. Defaults to "postgres".
	DocstoreDriver string

	// DatabaseURL is the Postgres connection string. Required for the postgres driver.
	DatabaseURL string

	SQLitePath string

	// MongoURI is required for the mongo driver.
	MongoURI      string
	MongoDatabase string

	BadgerPath string

	// ChildLayout is "collections" (one document per child) or "embedded"
	// (arrays on the trip document).
	ChildLayout string

	// JWTSecret signs and verifies bearer tokens. Required.
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// RateLimitRPS and RateLimitBurst size the per-identity token bucket.
	RateLimitRPS   float64
	RateLimitBurst int

	// Blob configures where cloud backups are written.
	Blob blob.Config
}

// Load reads configuration from environment variables and returns a Config.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
// Returns an error listing any required variables that are not set and any
// values that could not be parsed.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config.Load: .env: %w", err)
	}

	var (
		missing []string
		invalid []string
	)

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CORSOrigins:    splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		DocstoreDriver: strings.ToLower(getEnv("DOCSTORE_DRIVER", DriverPostgres)),
		SQLitePath:     getEnv("SQLITE_PATH", "travelogue.db"),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "travelogue"),
		BadgerPath:     getEnv("BADGER_PATH", "./data"),
		ChildLayout:    strings.ToLower(getEnv("CHILD_LAYOUT", "collections")),
		JWTIssuer:      getEnv("JWT_ISSUER", "travelogue"),
		Blob: blob.Config{
			Driver:         blob.Driver(strings.ToLower(getEnv("BLOB_DRIVER", string(blob.DriverFilesystem)))),
			FSRoot:         getEnv("BLOB_FS_ROOT", "./backups"),
			S3Bucket:       os.Getenv("BLOB_S3_BUCKET"),
			S3Region:       getEnv("BLOB_S3_REGION", "us-east-1"),
			S3Endpoint:     os.Getenv("BLOB_S3_ENDPOINT"),
			GCSBucket:      os.Getenv("BLOB_GCS_BUCKET"),
			GCSCredentials: os.Getenv("BLOB_GCS_CREDENTIALS"),
		},
	}

	parse := func(key, fallback string, fn func(string) error) {
		if err := fn(getEnv(key, fallback)); err != nil {
			invalid = append(invalid, key)
		}
	}
	parse("JWT_TTL", "168h", func(s string) (err error) {
		cfg.JWTTTL, err = time.ParseDuration(s)
		return err
	})
	parse("MAX_BODY_BYTES", "1048576", func(s string) (err error) {
		cfg.MaxBodyBytes, err = strconv.ParseInt(s, 10, 64)
		return err
	})
	parse("RATE_LIMIT_RPS", "10", func(s string) (err error) {
		cfg.RateLimitRPS, err = strconv.ParseFloat(s, 64)
		return err
	})
	parse("RATE_LIMIT_BURST", "30", func(s string) (err error) {
		cfg.RateLimitBurst, err = strconv.Atoi(s)
		return err
	})
	parse("BLOB_S3_PATH_STYLE", "false", func(s string) (err error) {
		cfg.Blob.S3PathStyle, err = strconv.ParseBool(s)
		return err
	})

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MongoURI = os.Getenv("MONGODB_URI")
	switch cfg.DocstoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGODB_URI")
		}
	case DriverSQLite, DriverBadger, DriverMemory:
	default:
		invalid = append(invalid, "DOCSTORE_DRIVER")
	}

	switch cfg.ChildLayout {
	case "collections", "embedded":
	default:
		invalid = append(invalid, "CHILD_LAYOUT")
	}

	switch cfg.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if cfg.Blob.S3Bucket == "" {
			missing = append(missing, "BLOB_S3_BUCKET")
		}
	case blob.DriverGCS:
		if cfg.Blob.GCSBucket == "" {
			missing = append(missing, "BLOB_GCS_BUCKET")
		}
	default:
		invalid = append(invalid, "BLOB_DRIVER")
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "required environment variables not set: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "invalid environment variables: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return Config{}, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
