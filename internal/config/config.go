package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the sync engine and CLI.
type Config struct {
	// ServerURL is the base URL of the chat server API.
	ServerURL string

	// RailgunHome is the directory where local state is stored.
	RailgunHome string
	// AccessToken is the path to the persisted session token file.
	AccessToken string
	// MasterKey is the path to the persisted 32-byte master secret.
	MasterKey string

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is the textual log level (trace|debug|info|warn|error).
	LogLevel string

	// ConnectTimeout bounds a single connect attempt, including the
	// authentication round-trip.
	ConnectTimeout time.Duration
	// ReconnectFloor is the initial delay between reconnect attempts.
	ReconnectFloor time.Duration
	// ReconnectCeiling caps the delay between reconnect attempts.
	ReconnectCeiling time.Duration
	// PendingTimeout is how long a message may stay pending before it is
	// marked failed. Zero disables the watchdog.
	PendingTimeout time.Duration
	// HistoryPageSize is the default page size for history fetches.
	HistoryPageSize int
}

// Load loads configuration from the environment and defaults. A .env file
// in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	railgunHome := os.Getenv("RAILGUN_HOME_DIR")
	if railgunHome == "" {
		railgunHome = filepath.Join(homeDir, ".railgun")
	}
	if err := os.MkdirAll(railgunHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create railgun home: %w", err)
	}

	serverURL := os.Getenv("RAILGUN_SERVER_URL")
	if serverURL == "" {
		serverURL = "https://api.railgun.chat"
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1" ||
		os.Getenv("RAILGUN_DEBUG") == "true" || os.Getenv("RAILGUN_DEBUG") == "1"

	logLevel := os.Getenv("RAILGUN_LOG_LEVEL")
	if logLevel == "" {
		if debug {
			logLevel = "debug"
		} else {
			logLevel = "info"
		}
	}

	connectTimeout, err := durationEnv("RAILGUN_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	reconnectFloor, err := durationEnv("RAILGUN_RECONNECT_FLOOR", time.Second)
	if err != nil {
		return nil, err
	}
	reconnectCeiling, err := durationEnv("RAILGUN_RECONNECT_CEILING", 5*time.Second)
	if err != nil {
		return nil, err
	}
	pendingTimeout, err := durationEnv("RAILGUN_PENDING_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerURL:        serverURL,
		RailgunHome:      railgunHome,
		AccessToken:      filepath.Join(railgunHome, "access.token"),
		MasterKey:        filepath.Join(railgunHome, "master.key"),
		Debug:            debug,
		LogLevel:         logLevel,
		ConnectTimeout:   connectTimeout,
		ReconnectFloor:   reconnectFloor,
		ReconnectCeiling: reconnectCeiling,
		PendingTimeout:   pendingTimeout,
		HistoryPageSize:  50,
	}, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}
