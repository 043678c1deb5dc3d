package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httputil"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// ReqCache stores raw upstream responses in the Store, keyed by a hash of
// the full request dump, and collapses identical in-flight requests.
type ReqCache struct {
	store   *Store
	log     *log.Logger
	metrics *Metrics
	group   singleflight.Group
	now     func() time.Time
	// fetchTimeout bounds a shared upstream fetch, which outlives the
	// caller that started it.
	fetchTimeout time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewReqCache(ctx context.Context, store *Store, logger *log.Logger, metrics *Metrics) *ReqCache {
	ctx, cancel := context.WithCancel(ctx)
	rc := &ReqCache{
		store:   store,
		log:     logger.WithPrefix("cache"),
		metrics: metrics,
		now:     time.Now,
		cancel:  cancel,

		fetchTimeout: 30 * time.Second,
		done:    make(chan struct{}),
	}
	go rc.purgeExpired(ctx, 1*time.Hour)
	return rc
}

// Close stops the purge loop and waits for it to exit.
func (rc *ReqCache) Close() {
	rc.once.Do(func() {
		rc.cancel()
		<-rc.done
	})
}

func (rc *ReqCache) purgeExpired(ctx context.Context, every time.Duration) {
	defer close(rc.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		n, err := rc.store.DeleteBefore(rc.now().Unix())
		if err != nil {
			rc.log.Error("purging expired responses", "err", err)
		} else if n > 0 {
			rc.log.Debug("purged expired responses", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CachedFetch answers req from the cache when a fresh copy exists, otherwise
// performs it with client. Only 2xx answers are stored, for ttl seconds.
func (rc *ReqCache) CachedFetch(req *http.Request, client *http.Client, ttl int) (*http.Response, error) {
	reqBytes, _ := httputil.DumpRequest(req, true)
	md5Hash := md5.Sum(reqBytes)
	reqHash := hex.EncodeToString(md5Hash[:])
	data, ok := rc.store.GetResponse(reqHash, rc.now().Unix())
	if ok {
		res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), req)
		if err == nil {
			rc.metrics.cacheLookup("hit")
			return res, nil
		}
		rc.log.Warn("problems decoding cached result", "err", err)
	}
	rc.metrics.cacheLookup("miss")

	ch := rc.group.DoChan(reqHash, func() (interface{}, error) {
		// The shared fetch outlives whichever caller started it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), rc.fetchTimeout)
		defer cancel()
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		respBytes, err := httputil.DumpResponse(resp, true)
		if err != nil {
			return nil, err
		}
		rc.log.Debug("MISS", "host", req.URL.Host, "status", resp.StatusCode)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := rc.store.StoreResponse(reqHash, respBytes, rc.now().Unix()+int64(ttl)); err != nil {
				rc.log.Error("storing response", "err", err)
			}
		}
		return respBytes, nil
	})

	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			rc.log.Debug("collapsed duplicate request", "host", req.URL.Host)
		}
		return http.ReadResponse(bufio.NewReader(bytes.NewReader(res.Val.([]byte))), req)
	}
}
