package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// FeedSessions keeps one Feed per client view. Sessions expire after ttl of
// inactivity; every lookup renews them.
type FeedSessions struct {
	cache      *cache.Cache
	ttl        time.Duration
	pagination bool
}

func NewFeedSessions(ttl time.Duration, pagination bool) *FeedSessions {
	return &FeedSessions{
		cache:      cache.New(ttl, ttl/2+time.Second),
		ttl:        ttl,
		pagination: pagination,
	}
}

func (s *FeedSessions) Create() (string, *Feed) {
	id := uuid.NewString()
	feed := NewFeed(s.pagination)
	s.cache.Set(id, feed, s.ttl)
	return id, feed
}

func (s *FeedSessions) Get(id string) (*Feed, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.cache.Set(id, v, s.ttl)
	return v.(*Feed), nil
}

func (s *FeedSessions) Delete(id string) {
	s.cache.Delete(id)
}

func (s *FeedSessions) Len() int {
	return s.cache.ItemCount()
}
