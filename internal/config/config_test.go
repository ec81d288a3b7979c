package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, DefaultFileListPrefix, cfg.FileListPrefix)
	assert.Equal(t, "_file_list.txt", cfg.FileListSuffix)
	assert.Equal(t, "irma", cfg.DefaultEvent)
	assert.Equal(t, 20.0, cfg.PatchDistance)
	assert.Equal(t, 3, cfg.MinBands)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "damage-patches", cfg.KafkaPatchTopic)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/patches")
	t.Setenv("FILE_LIST_URL_PREFIX", "https://example.com/lists/")
	t.Setenv("FILE_LIST_SUFFIX", ".txt")
	t.Setenv("DEFAULT_EVENT", "harvey")
	t.Setenv("PATCH_DISTANCE_METERS", "35.5")
	t.Setenv("MIN_BANDS", "4")
	t.Setenv("WORKERS", "8")
	t.Setenv("HTTP_TIMEOUT", "2m")
	t.Setenv("METRICS_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_PATCH_TOPIC", "custom-patches")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/patches", cfg.DataDir)
	assert.Equal(t, "https://example.com/lists/harvey.txt", cfg.FileListURL("harvey"))
	assert.Equal(t, "harvey", cfg.DefaultEvent)
	assert.Equal(t, 35.5, cfg.PatchDistance)
	assert.Equal(t, 4, cfg.MinBands)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2*time.Minute, cfg.HTTPTimeout)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "custom-patches", cfg.KafkaPatchTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "data"}

	assert.Equal(t, filepath.Join("data", "raw"), cfg.RawDir())
	assert.Equal(t, filepath.Join("data", "processed"), cfg.ProcessedDir())
	assert.Equal(t, filepath.Join("data", "processed", "patches"), cfg.PatchesDir())
	assert.Equal(t, filepath.Join("data", "processed", "geojsons"), cfg.GeoJSONDir())
	assert.Equal(t, filepath.Join("data", "processed", "digital-globe-file-lists-tidied"), cfg.TidiedListsDir())
}

func TestConfig_FileListURL(t *testing.T) {
	cfg := &Config{FileListPrefix: DefaultFileListPrefix, FileListSuffix: "_file_list.txt"}
	assert.Equal(t, DefaultFileListPrefix+"irma_file_list.txt", cfg.FileListURL("irma"))
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"HTTP_TIMEOUT", "bad"},
		{"HTTP_TIMEOUT", "-1s"},
		{"MAPBOX_TIMEOUT", "bad"},
		{"PATCH_DISTANCE_METERS", "far"},
		{"PATCH_DISTANCE_METERS", "0"},
		{"PATCH_DISTANCE_METERS", "Inf"},
		{"PATCH_DISTANCE_METERS", "NaN"},
		{"MIN_BANDS", "0"},
		{"MIN_BANDS", "three"},
		{"WORKERS", "-2"},
		{"WORKERS", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}
