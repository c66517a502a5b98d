package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ImportAppendIfEmpty = "append-if-empty"
	ImportReplace       = "replace"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir       string
	ShutdownTimeout time.Duration

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLiteLogSQL          bool

	// Dataset.
	GeoJSONPath     string
	ObservationsCSV string
	RegionKey       string
	ImportMode      string

	// Playback and rendering.
	TickInterval       time.Duration
	TransitionDuration time.Duration
	MapWidth           int
	MapHeight          int

	// MQTTBroker empty disables the MQTT sink.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// KafkaBrokers empty disables the Kafka sink.
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := envString("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir := envString("STATIC_DIR", "static")
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	cfg := Config{
		AppEnv:       appEnv,
		LogLevel:     level,
		HTTPAddr:     envString("HTTP_ADDR", ":8080"),
		StaticDir:    staticDir,
		SQLiteDriver: envString("DB_DRIVER", "sqlite3"),
		SQLiteDSN:    envString("DB_DSN", ""),
		SQLitePath:   envString("SQLITE_PATH", "data/climatemap.db"),

		GeoJSONPath:     envString("GEOJSON_PATH", "data/poa.geojson"),
		ObservationsCSV: envString("OBSERVATIONS_CSV", "data/observations.csv"),
		RegionKey:       envString("REGION_KEY", "POA_CODE"),
		ImportMode:      envString("IMPORT_MODE", ImportAppendIfEmpty),

		MQTTBroker:   envString("MQTT_BROKER", ""),
		MQTTClientID: envString("MQTT_CLIENT_ID", ""),
		MQTTTopic:    envString("MQTT_TOPIC", "climatemap/frames"),

		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envString("KAFKA_TOPIC", "climatemap-frames"),
	}

	switch cfg.ImportMode {
	case ImportAppendIfEmpty, ImportReplace:
	default:
		return Config{}, fmt.Errorf("invalid IMPORT_MODE %q (allowed: %s, %s)", cfg.ImportMode, ImportAppendIfEmpty, ImportReplace)
	}

	ints := []struct {
		key string
		def int
		dst *int
		min int
	}{
		{key: "DB_MAX_OPEN_CONNS", def: 1, dst: &cfg.SQLiteMaxOpenConns, min: 0},
		{key: "DB_MAX_IDLE_CONNS", def: 1, dst: &cfg.SQLiteMaxIdleConns, min: 0},
		{key: "MAP_WIDTH", def: 650, dst: &cfg.MapWidth, min: 1},
		{key: "MAP_HEIGHT", def: 550, dst: &cfg.MapHeight, min: 1},
		{key: "MQTT_PORT", def: 1883, dst: &cfg.MQTTPort, min: 1},
	}
	for _, v := range ints {
		n, err := envInt(v.key, v.def)
		if err != nil {
			return Config{}, err
		}
		if n < v.min {
			return Config{}, fmt.Errorf("invalid %s %d (must be >= %d)", v.key, n, v.min)
		}
		*v.dst = n
	}

	durations := []struct {
		key      string
		def      string
		dst      *time.Duration
		positive bool
	}{
		{key: "DB_CONN_MAX_LIFETIME", def: "0s", dst: &cfg.SQLiteConnMaxLifetime},
		{key: "TICK_INTERVAL", def: "100ms", dst: &cfg.TickInterval, positive: true},
		{key: "TRANSITION_DURATION", def: "100ms", dst: &cfg.TransitionDuration},
		{key: "SHUTDOWN_TIMEOUT", def: "10s", dst: &cfg.ShutdownTimeout, positive: true},
	}
	for _, v := range durations {
		d, err := envDuration(v.key, v.def)
		if err != nil {
			return Config{}, err
		}
		if d < 0 || (v.positive && d == 0) {
			return Config{}, fmt.Errorf("invalid %s %s (must be positive)", v.key, d)
		}
		*v.dst = d
	}

	cfg.SQLiteLogSQL, err = envBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key, def string) (time.Duration, error) {
	s := envString(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

// envList splits a comma separated value, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
