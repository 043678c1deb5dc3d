package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fetchBody(t *testing.T, rc *ReqCache, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := rc.CachedFetch(req, &http.Client{}, 60)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestReqCacheServesSecondRequestFromStore(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", "https://api.example/photos", httpmock.NewStringResponder(http.StatusOK, `{"n":1}`))

	metrics := NewMetrics(prometheus.NewRegistry())
	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), metrics)
	defer rc.Close()

	status, body := fetchBody(t, rc, "https://api.example/photos?q=cats")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"n":1}`, body)

	status, body = fetchBody(t, rc, "https://api.example/photos?q=cats")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"n":1}`, body)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cache.WithLabelValues("miss")))
}

func TestReqCacheDistinguishesRequests(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", "https://api.example/photos", func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(http.StatusOK, req.URL.Query().Get("q")), nil
	})

	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), nil)
	defer rc.Close()

	_, cats := fetchBody(t, rc, "https://api.example/photos?q=cats")
	_, dogs := fetchBody(t, rc, "https://api.example/photos?q=dogs")

	assert.Equal(t, "cats", cats)
	assert.Equal(t, "dogs", dogs)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestReqCacheSkipsErrorResponses(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", "https://api.example/photos", httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down"))

	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), nil)
	defer rc.Close()

	status, _ := fetchBody(t, rc, "https://api.example/photos")
	assert.Equal(t, http.StatusTooManyRequests, status)
	fetchBody(t, rc, "https://api.example/photos")

	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestReqCacheExpiredEntriesAreRefetched(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", "https://api.example/photos", httpmock.NewStringResponder(http.StatusOK, "fresh"))

	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), nil)
	defer rc.Close()

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodGet, "https://api.example/photos", nil)
		require.NoError(t, err)
		// a negative ttl stores the response already expired
		resp, err := rc.CachedFetch(req, &http.Client{}, -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestUpstreamUsesCache(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", pixabayURL, httpmock.NewStringResponder(http.StatusOK, pixabayBody()))

	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), nil)
	defer rc.Close()
	api := NewPixabayApi(testConfig(), NewUpstream(rc, testConfig().Retry, discardLogger()), discardLogger())

	first := api.Search(context.Background(), 1, NewQuery("flower"))
	second := api.Search(context.Background(), 1, NewQuery("flower"))

	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.images, second.images)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestReqCacheCloseStopsPurgeLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store, err := NewStore(filepath.Join(t.TempDir(), "cache.db"), discardLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.StoreResponse("old", []byte("x"), time.Now().Add(-time.Hour).Unix()))
	require.NoError(t, store.StoreResponse("new", []byte("y"), time.Now().Add(time.Hour).Unix()))

	rc := NewReqCache(context.Background(), store, discardLogger(), nil)
	rc.Close()
	rc.Close()

	_, ok := store.GetResponse("old", 0)
	assert.False(t, ok, "expired rows are purged on start")
	_, ok = store.GetResponse("new", time.Now().Unix())
	assert.True(t, ok)
}

func TestReqCacheSharedFetchSurvivesCallerTimeout(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, "slow answer")
	}))
	defer upstream.Close()

	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), nil)
	defer rc.Close()

	fetch := func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+"/q", nil)
		require.NoError(t, err)
		resp, err := rc.CachedFetch(req, &http.Client{}, 60)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return string(body), err
	}

	impatient := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := fetch(ctx)
		impatient <- err
	}()
	time.Sleep(10 * time.Millisecond)

	body, err := fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "slow answer", body)

	err = <-impatient
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), hits.Load(), "both callers share one upstream request")
}

func TestReqCacheCallerLeavesOnOwnCancellation(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "late")
	}))
	defer upstream.Close()
	defer close(release)

	rc := NewReqCache(context.Background(), newTestStore(t), discardLogger(), nil)
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+"/q", nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = rc.CachedFetch(req, &http.Client{}, 60)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
