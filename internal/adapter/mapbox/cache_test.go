package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	reverseCalls int
	result       domain.GeocodingResult
	err          error
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.reverseCalls++
	return m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Country: "United States", CountryCode: "US"},
	}
	metrics := testMetrics()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.ReverseGeocode(context.Background(), 25.7617, -80.1918)
	require.NoError(t, err)
	assert.Equal(t, "United States", r1.Country)

	// Same ~1km bucket.
	r2, err := cached.ReverseGeocode(context.Background(), 25.7641, -80.1932)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.reverseCalls, "should only call inner once")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")), 0)
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Country: "United States"},
	}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, _ = cached.ReverseGeocode(context.Background(), 25.76, -80.19)
	_, _ = cached.ReverseGeocode(context.Background(), 18.22, -66.59)

	assert.Equal(t, 2, inner.reverseCalls)
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	metrics := testMetrics()
	cached := NewCachedGeocoder(inner, 10, metrics)

	_, _ = cached.ReverseGeocode(context.Background(), 20, -70)
	_, _ = cached.ReverseGeocode(context.Background(), 20, -70)
	assert.Equal(t, 2, inner.reverseCalls, "empty results are retried")

	inner.err = errors.New("unavailable")
	_, err := cached.ReverseGeocode(context.Background(), 20, -70)
	require.Error(t, err)

	inner.err = nil
	inner.result = domain.GeocodingResult{Country: "Dominican Republic"}
	r, err := cached.ReverseGeocode(context.Background(), 20, -70)
	require.NoError(t, err)
	assert.Equal(t, "Dominican Republic", r.Country)
	assert.Equal(t, 4, inner.reverseCalls, "the failed lookup left nothing behind")
	assert.Zero(t, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")))
	assert.InDelta(t, 4.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")), 0)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "rev:25.76,-80.19", cacheKey(25.7617, -80.1918))
	assert.NotEqual(t, cacheKey(25.76, -80.19), cacheKey(25.78, -80.19))
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", domain.GeocodingResult{Country: "A"})
	c.put("b", domain.GeocodingResult{Country: "B"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Country)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{Country: "A"})
	c.put("b", domain.GeocodingResult{Country: "B"})
	c.put("c", domain.GeocodingResult{Country: "C"}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.Country)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.Country)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{Country: "A"})
	c.put("b", domain.GeocodingResult{Country: "B"})

	// Access "a" to promote it
	c.get("a")

	// Insert "c": should evict "b" (LRU), not "a"
	c.put("c", domain.GeocodingResult{Country: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.GeocodingResult{Country: "A1"})
	c.put("a", domain.GeocodingResult{Country: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Country)
}
