// Package config reads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full configuration surface of the scanner service.
type Config struct {
	ListenAddr string

	MountRoot  string
	FileScheme string

	SPARQLQueryEndpoint  string
	SPARQLUpdateEndpoint string
	StoreTimeout         time.Duration

	ClamdAddr     string
	ClamdTimeout  time.Duration
	ClamdPoolSize int

	RetryAttempts int
	RetryDelay    time.Duration

	// PersistBatchResults controls whether the delta path writes analysis
	// records per scanned file or only logs classifications.
	PersistBatchResults bool

	LogIncomingDelta  bool
	LogScanRequests   bool
	MaxDeltaBodyBytes int64

	NATSURL      string
	DeltaSubject string
	AlertSubject string
}

// FromEnv builds the configuration with defaults matching a standard
// mu.semte.ch deployment.
func FromEnv() Config {
	return Config{
		ListenAddr:           getString("LISTEN_ADDR", ":8080"),
		MountRoot:            getString("MOUNT_ROOT", "/share"),
		FileScheme:           getString("FILE_SCHEME", "share://"),
		SPARQLQueryEndpoint:  getString("SPARQL_QUERY_ENDPOINT", "http://database:8890/sparql"),
		SPARQLUpdateEndpoint: getString("SPARQL_UPDATE_ENDPOINT", "http://database:8890/sparql"),
		StoreTimeout:         getDuration("STORE_TIMEOUT", 30*time.Second),
		ClamdAddr:            getString("CLAMD_ADDR", "unix:/var/run/clamav/clamd.ctl"),
		ClamdTimeout:         getDuration("CLAMD_TIMEOUT", 2*time.Minute),
		ClamdPoolSize:        getInt("CLAMD_POOL_SIZE", 4),
		RetryAttempts:        getInt("RETRY_ATTEMPTS", 1),
		RetryDelay:           getDuration("RETRY_DELAY", 250*time.Millisecond),
		PersistBatchResults:  getBool("PERSIST_BATCH_RESULTS", false),
		LogIncomingDelta:     getBool("LOG_INCOMING_DELTA", false),
		LogScanRequests:      getBool("LOG_SCAN_REQUESTS", false),
		MaxDeltaBodyBytes:    getInt64("MAX_DELTA_BODY_BYTES", 50<<20),
		NATSURL:              getString("DELTA_NATS_URL", ""),
		DeltaSubject:         getString("DELTA_NATS_SUBJECT", "deltas.ingest"),
		AlertSubject:         getString("SCANNER_ALERT_SUBJECT", "scanner.infected"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
