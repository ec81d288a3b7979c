package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultFileListPrefix is where the per-event Digital Globe link lists live.
const DefaultFileListPrefix = "https://raw.githubusercontent.com/Chestnut-lol/predicting-cat-5-damage-to-buildings/main/data/raw/digital-globe-file-lists/"

const maxWorkers = 64

// Config holds all settings, populated from environment variables.
type Config struct {
	DataDir         string
	FileListPrefix  string
	FileListSuffix  string
	DefaultEvent    string
	PatchDistance   float64
	MinBands        int
	Workers         int
	HTTPTimeout     time.Duration
	MetricsAddr     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional patch-event sink; disabled when no brokers are set.
	KafkaBrokers    []string
	KafkaPatchTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	distance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("PATCH_DISTANCE_METERS", "20"), 64)
	if err != nil || distance <= 0 || math.IsInf(distance, 0) || math.IsNaN(distance) {
		return nil, errors.New("invalid PATCH_DISTANCE_METERS: must be a positive finite number")
	}

	minBands, err := parsePositiveInt("MIN_BANDS", "3")
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("WORKERS", "1")
	if err != nil {
		return nil, err
	}
	if workers > maxWorkers {
		return nil, fmt.Errorf("invalid WORKERS: must be at most %d", maxWorkers)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		FileListPrefix:  sharedcfg.EnvOrDefault("FILE_LIST_URL_PREFIX", DefaultFileListPrefix),
		FileListSuffix:  sharedcfg.EnvOrDefault("FILE_LIST_SUFFIX", "_file_list.txt"),
		DefaultEvent:    sharedcfg.EnvOrDefault("DEFAULT_EVENT", "irma"),
		PatchDistance:   distance,
		MinBands:        minBands,
		Workers:         workers,
		HTTPTimeout:     httpTimeout,
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:    parseOptionalBrokers(),
		KafkaPatchTopic: sharedcfg.EnvOrDefault("KAFKA_PATCH_TOPIC", "damage-patches"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.DefaultEvent == "" {
		return nil, errors.New("DEFAULT_EVENT is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaPatchTopic == "" {
		return nil, errors.New("KAFKA_PATCH_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether patch events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RawDir holds downloaded artifacts (vector archives and their extractions).
func (c *Config) RawDir() string {
	return filepath.Join(c.DataDir, "raw")
}

// ProcessedDir holds derived artifacts.
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.DataDir, "processed")
}

// PatchesDir is the root of per-event pre/ and post/ patch directories.
func (c *Config) PatchesDir() string {
	return filepath.Join(c.ProcessedDir(), "patches")
}

// GeoJSONDir holds combined, filtered label files.
func (c *Config) GeoJSONDir() string {
	return filepath.Join(c.ProcessedDir(), "geojsons")
}

// TidiedListsDir holds per-event tidied imagery catalogs.
func (c *Config) TidiedListsDir() string {
	return filepath.Join(c.ProcessedDir(), "digital-globe-file-lists-tidied")
}

// FileListURL returns the raw link list location for an event.
func (c *Config) FileListURL(event string) string {
	return c.FileListPrefix + event + c.FileListSuffix
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseOptionalBrokers() []string {
	v := os.Getenv("KAFKA_BROKERS")
	if v == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(v)
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
