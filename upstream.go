package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// Upstream is the shared HTTP path of every provider adapter: optional
// response cache, retry with exponential backoff, JSON decoding.
type Upstream struct {
	Http  *http.Client
	cache *ReqCache
	retry RetryConfig
	log   *log.Logger
}

func NewUpstream(cache *ReqCache, retry RetryConfig, logger *log.Logger) *Upstream {
	return &Upstream{
		Http:  &http.Client{},
		cache: cache,
		retry: retry,
		log:   logger.WithPrefix("upstream"),
	}
}

func (up *Upstream) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if up.retry.InitialMillis > 0 {
		exp.InitialInterval = time.Duration(up.retry.InitialMillis) * time.Millisecond
	}
	if up.retry.MaxMillis > 0 {
		exp.MaxInterval = time.Duration(up.retry.MaxMillis) * time.Millisecond
	}
	// The per-provider context deadline bounds the total time instead.
	exp.MaxElapsedTime = 0
	retries := up.retry.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// GetJSON performs req and decodes a 2xx body into out. Network errors, 429
// and 5xx are retried; any other status is returned at once. Every failure
// wraps ErrProviderUnavailable.
func (up *Upstream) GetJSON(ctx context.Context, req *http.Request, ttl int, out any) error {
	req = req.WithContext(ctx)
	attempt := 0
	op := func() error {
		attempt++
		resp, err := up.do(req, ttl)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: %s answered %d", ErrProviderUnavailable, req.URL.Host, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("%w: %s answered %d", ErrProviderUnavailable, req.URL.Host, resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decoding %s response: %v", ErrProviderUnavailable, req.URL.Host, err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		up.log.Warn("retrying upstream request", "host", req.URL.Host, "attempt", attempt, "wait", wait, "err", err)
	}
	err := backoff.RetryNotify(op, up.newBackOff(ctx), notify)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
	}
	return err
}

func (up *Upstream) do(req *http.Request, ttl int) (*http.Response, error) {
	if up.cache != nil {
		return up.cache.CachedFetch(req, up.Http, ttl)
	}
	return up.Http.Do(req)
}
