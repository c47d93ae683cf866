// Package config provides centralized default values for HiveWatch
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%g (default: %g)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	AllowedOrigins     []string

	// Enrichment Configuration
	SkipEnrich  bool
	HTTPTimeout time.Duration

	// Feature Flags
	EnableRedisCache        bool
	EnableDBCache           bool
	EnableRateLimiting      bool
	EnableTelemetry         bool
	EnableVTQuotaManagement bool

	// Credentials (an absent credential disables its provider)
	DShieldEmail  string
	URLHausAPIKey string
	SpurAPIToken  string
	VTAPIKey      string

	// Provider Endpoints
	DShieldBaseURL string
	URLHausBaseURL string
	SpurBaseURL    string
	VTBaseURL      string

	// Cache Configuration
	CacheBaseDir  string
	DataBaseDir   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DBCachePath   string

	// TTL Configuration (per service)
	DShieldTTL time.Duration
	URLHausTTL time.Duration
	SpurTTL    time.Duration
	VTTTL      time.Duration

	// Rate Limit Configuration (per service)
	DShieldRate  float64
	DShieldBurst int
	URLHausRate  float64
	URLHausBurst int
	SpurRate     float64
	SpurBurst    int
	VTRate       float64
	VTBurst      int

	// Retry Configuration
	RetryMaxAttempts  int
	RetryBase         time.Duration
	RetryFactor       float64
	RetryJitter       bool
	RespectRetryAfter bool

	// Quota Configuration
	VTQuotaThresholdPercent float64
	QuotaSnapshotTTL        time.Duration

	// URLHaus wall-clock guard (around the entire call, retries included)
	URLHausWallClockTimeout time.Duration

	// Cleanup Intervals
	CleanupInterval time.Duration
	CleanupVerbose  bool
)

// Initialize loads environment overrides into the package-level defaults.
// Safe to call more than once; later calls re-read the environment.
func Initialize() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	AllowedOrigins = strings.Split(getEnvString("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"), ",")

	// Enrichment Configuration
	SkipEnrich = getEnvBool("SKIP_ENRICH", false)
	HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 30*time.Second)

	// Feature Flags
	EnableRedisCache = getEnvBool("ENABLE_REDIS_CACHE", false)
	EnableDBCache = getEnvBool("ENABLE_DB_CACHE", false)
	EnableRateLimiting = getEnvBool("ENABLE_RATE_LIMITING", true)
	EnableTelemetry = getEnvBool("ENABLE_TELEMETRY", true)
	EnableVTQuotaManagement = getEnvBool("ENABLE_VT_QUOTA_MANAGEMENT", true)

	// Credentials
	DShieldEmail = getEnvString("DSHIELD_EMAIL", "")
	URLHausAPIKey = getEnvString("URLHAUS_API_KEY", "")
	SpurAPIToken = getEnvString("SPUR_API_TOKEN", "")
	VTAPIKey = getEnvString("VT_API_KEY", "")

	// Provider Endpoints
	DShieldBaseURL = getEnvString("DSHIELD_BASE_URL", "https://isc.sans.edu/api/ip")
	URLHausBaseURL = getEnvString("URLHAUS_BASE_URL", "https://urlhaus-api.abuse.ch/v1/host/")
	SpurBaseURL = getEnvString("SPUR_BASE_URL", "https://spur.us/api/v2/context")
	VTBaseURL = getEnvString("VT_BASE_URL", "https://www.virustotal.com/api/v3")

	// Cache Configuration
	CacheBaseDir = getEnvString("CACHE_BASE_DIR", "cache")
	DataBaseDir = getEnvString("DATA_BASE_DIR", "data")
	RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	RedisPassword = getEnvString("REDIS_PASSWORD", "")
	RedisDB = getEnvInt("REDIS_DB", 0)
	DBCachePath = getEnvString("DB_CACHE_PATH", "data/enrich_cache.db")

	// TTL Configuration
	DShieldTTL = time.Duration(getEnvInt("DSHIELD_TTL_HOURS", 168)) * time.Hour
	URLHausTTL = time.Duration(getEnvInt("URLHAUS_TTL_HOURS", 24)) * time.Hour
	SpurTTL = time.Duration(getEnvInt("SPUR_TTL_HOURS", 168)) * time.Hour
	VTTTL = time.Duration(getEnvInt("VT_TTL_HOURS", 720)) * time.Hour

	// Rate Limit Configuration
	DShieldRate = getEnvFloat("DSHIELD_RATE", 1.0)
	DShieldBurst = getEnvInt("DSHIELD_BURST", 2)
	URLHausRate = getEnvFloat("URLHAUS_RATE", 2.0)
	URLHausBurst = getEnvInt("URLHAUS_BURST", 3)
	SpurRate = getEnvFloat("SPUR_RATE", 1.0)
	SpurBurst = getEnvInt("SPUR_BURST", 2)
	VTRate = getEnvFloat("VT_RATE", 0.067)
	VTBurst = getEnvInt("VT_BURST", 1)

	// Retry Configuration
	RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	RetryBase = getEnvDuration("RETRY_BASE", 2*time.Second)
	RetryFactor = getEnvFloat("RETRY_FACTOR", 2.0)
	RetryJitter = getEnvBool("RETRY_JITTER", true)
	RespectRetryAfter = getEnvBool("RESPECT_RETRY_AFTER", true)

	// Quota Configuration
	VTQuotaThresholdPercent = getEnvFloat("VT_QUOTA_THRESHOLD_PERCENT", 90)
	QuotaSnapshotTTL = getEnvDuration("QUOTA_SNAPSHOT_TTL", 5*time.Minute)

	URLHausWallClockTimeout = getEnvDuration("URLHAUS_WALL_CLOCK_TIMEOUT", 30*time.Second)

	// Cleanup Intervals
	CleanupInterval = time.Duration(getEnvInt("CACHE_CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute
	CleanupVerbose = getEnvString("CACHE_CLEANUP_VERBOSE", "true") == "true"
}

func init() {
	Initialize()
}
