package aps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgepulse/forgepulse/internal/httpclient"
)

// newTestClient points the gateway at two httptest servers standing in for
// the regional deployments.
func newTestClient(usURL, emeaURL string, tweak func(*Options)) *Client {
	opts := Options{
		BaseURLUS:   usURL,
		BaseURLEMEA: emeaURL,
		HTTPClient:  httpclient.WrapClient(&http.Client{}),
	}
	if tweak != nil {
		tweak(&opts)
	}
	c := NewClient(opts)
	// Backoff delays are irrelevant to most tests; skip them.
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestDetectRegionFirstMatch(t *testing.T) {
	us := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/v1/projects/proj1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer us.Close()
	emea := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("EMEA should not be probed when US matches")
	}))
	defer emea.Close()

	c := newTestClient(us.URL, emea.URL, nil)

	region, ok := c.DetectRegion(context.Background(), "tok", "proj1")
	require.True(t, ok)
	assert.Equal(t, RegionUS, region)
}

func TestDetectRegionFallsBackToEMEA(t *testing.T) {
	us := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer us.Close()
	emea := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer emea.Close()

	c := newTestClient(us.URL, emea.URL, nil)

	region, ok := c.DetectRegion(context.Background(), "tok", "proj1")
	require.True(t, ok)
	assert.Equal(t, RegionEMEA, region)
}

func TestDetectRegionNowhere(t *testing.T) {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	us := httptest.NewServer(notFound)
	defer us.Close()
	emea := httptest.NewServer(notFound)
	defer emea.Close()

	c := newTestClient(us.URL, emea.URL, nil)

	_, ok := c.DetectRegion(context.Background(), "tok", "missing")
	assert.False(t, ok)
}

// The same project id is expected with the "b." prefix on some endpoints
// and without it on others; a 404 triggers exactly one retry with the
// prefix stripped.
func TestDetectRegionStrippedPrefixFallback(t *testing.T) {
	var paths []string
	us := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/data/v1/projects/proj1" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer us.Close()
	emea := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer emea.Close()

	c := newTestClient(us.URL, emea.URL, nil)

	region, ok := c.DetectRegion(context.Background(), "tok", "b.proj1")
	require.True(t, ok)
	assert.Equal(t, RegionUS, region)
	assert.Equal(t, []string{"/data/v1/projects/b.proj1", "/data/v1/projects/proj1"}, paths)
}
