// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trackhub/internal/logger"
)

const (
	defaultHost             = "127.0.0.1"
	defaultPort             = "5051"
	defaultPlaceholderImage = "/static/event-placeholder.svg"
	defaultSessionTTL       = 30 * 24 * time.Hour
	defaultMaxUploadBytes   = 5 << 20
	defaultDraftRetention   = 48 * time.Hour
	defaultRequestTimeout   = 30 * time.Second
	defaultRateLimit        = 120
	defaultRateWindow       = time.Minute
)

// Variables available everywhere
var (
	baseDir          string
	dataDirectory    string
	logsDirectory    string
	uploadsDirectory string
	databasePath     string
	catalogPath      string

	AllowedOrigin string // For CORS
	PublicBaseURL string
)

//
// --- Utility Helpers ---
//

// GetEnvBasedSetting reads <base>_<ENVIRONMENT>, e.g. DATA_DIRECTORY_DEV.
func GetEnvBasedSetting(base string) string {
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(Environment())))
}

// Environment returns ENVIRONMENT, defaulting to dev.
func Environment() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return env
}

func LogCurrentEnvironment() {
	if Environment() == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// settingOrDefault prefers the environment-specific value, then the plain key.
func settingOrDefault(base, defaultValue string) string {
	if v := GetEnvBasedSetting(base); v != "" {
		return v
	}
	return getEnvOrDefault(base, defaultValue)
}

//
// --- Loaders ---
//

// LoadEnv reads the .env file if there is one.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// LoggerConfig returns a logger.Config populated from the environment.
func LoggerConfig(console bool) logger.Config {
	return logger.Config{
		LogsDirectory: settingOrDefault("LOGS_DIRECTORY", "./logs"),
		LogFileFormat: settingOrDefault("LOG_FILE_FORMAT", "trackhub_%s.log"),
		TimeZone:      getEnvOrDefault("TIME_ZONE", "Local"),
		Level:         getEnvOrDefault("LOG_LEVEL", "INFO"),
		Console:       console,
	}
}

// ConfigurePaths resolves data, upload and database locations.
func ConfigurePaths() error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	baseDir = wd

	if Environment() == "production" {
		AllowedOrigin = os.Getenv("ALLOWED_ORIGIN_PROD")
	} else {
		AllowedOrigin = os.Getenv("ALLOWED_ORIGIN_DEV")
	}
	if AllowedOrigin == "" {
		AllowedOrigin = "*"
	}

	dataDirectory = settingOrDefault("DATA_DIRECTORY", filepath.Join(baseDir, "data"))
	logsDirectory = settingOrDefault("LOGS_DIRECTORY", filepath.Join(baseDir, "logs"))
	uploadsDirectory = settingOrDefault("UPLOADS_DIRECTORY", filepath.Join(dataDirectory, "uploads"))
	databasePath = settingOrDefault("DATABASE_PATH", filepath.Join(dataDirectory, "trackhub.db"))
	catalogPath = settingOrDefault("LEVEL_CATALOG_PATH", "")

	PublicBaseURL = strings.TrimRight(settingOrDefault("PUBLIC_BASE_URL", "http://"+ServerAddress()), "/")

	for _, dir := range []string{dataDirectory, uploadsDirectory} {
		if err := os.MkdirAll(dir, 0775); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

//
// --- Getters (exported) ---
//

// ServerAddress builds host:port from SERVER_HOST and SERVER_PORT.
func ServerAddress() string {
	return getEnvOrDefault("SERVER_HOST", defaultHost) + ":" + getEnvOrDefault("SERVER_PORT", defaultPort)
}

func LogsDirectory() string {
	return logsDirectory
}

func UploadsDirectory() string {
	return uploadsDirectory
}

func DatabasePath() string {
	return databasePath
}

// CatalogPath is empty when the built-in level catalog should be used.
func CatalogPath() string {
	return catalogPath
}

// PlaceholderImageURL is stored on events whose image is missing or failed to upload.
func PlaceholderImageURL() string {
	return getEnvOrDefault("PLACEHOLDER_IMAGE_URL", PublicBaseURL+defaultPlaceholderImage)
}

func SessionTTL() time.Duration {
	return durationSetting("SESSION_TTL", defaultSessionTTL)
}

// RequestTimeout bounds every HTTP request, submissions included.
func RequestTimeout() time.Duration {
	return durationSetting("REQUEST_TIMEOUT", defaultRequestTimeout)
}

// DraftRetention is how long an untouched wizard draft survives cleanup.
func DraftRetention() time.Duration {
	return durationSetting("DRAFT_RETENTION", defaultDraftRetention)
}

// RateLimit is how many API requests one caller may make per window.
func RateLimit() (int, time.Duration) {
	window := durationSetting("RATE_LIMIT_WINDOW", defaultRateWindow)
	v := os.Getenv("RATE_LIMIT_REQUESTS")
	if v == "" {
		return defaultRateLimit, window
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.LogWarn("Invalid RATE_LIMIT_REQUESTS: %s, using default %d", v, defaultRateLimit)
		return defaultRateLimit, window
	}
	return n, window
}

// TrustProxyHeaders reports whether client addresses may be taken from
// X-Forwarded-For. Off unless TRUST_PROXY_HEADERS is a true value.
func TrustProxyHeaders() bool {
	v := strings.TrimSpace(os.Getenv("TRUST_PROXY_HEADERS"))
	if v == "" {
		return false
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		logger.LogWarn("Invalid TRUST_PROXY_HEADERS: %s, not trusting proxy headers", v)
		return false
	}
	return on
}

func MaxUploadBytes() int64 {
	v := os.Getenv("MAX_UPLOAD_BYTES")
	if v == "" {
		return defaultMaxUploadBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		logger.LogWarn("Invalid MAX_UPLOAD_BYTES: %s, using default %d", v, defaultMaxUploadBytes)
		return defaultMaxUploadBytes
	}
	return n
}

// WeekStart is the first column of the date picker. Accepts weekday names
// ("sunday", "Mon") or numbers 0-6; defaults to Sunday.
func WeekStart() time.Weekday {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CALENDAR_WEEK_START")))
	if v == "" {
		return time.Sunday
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d
		}
	}
	logger.LogWarn("Invalid CALENDAR_WEEK_START: %s, using Sunday", v)
	return time.Sunday
}

func durationSetting(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.LogWarn("Invalid %s: %s, using default %v", key, v, def)
		return def
	}
	return d
}
