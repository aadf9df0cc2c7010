package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/npezzotti/go-reveal/internal/stats"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const cacheWriteTimeout = 2 * time.Second

// CachedSearcher is a cache-aside wrapper around a Searcher. Concurrent
// identical queries share one upstream call.
type CachedSearcher struct {
	next   Searcher
	cache  Cache
	filter Filter
	prefix string
	ttl    time.Duration
	stats  stats.StatsProvider
	log    zerolog.Logger

	pending sync.WaitGroup
	g       singleflight.Group
}

// NewCachedSearcher wraps next. filter must match the filter next applies
// so that entries for different filters never collide.
func NewCachedSearcher(next Searcher, cache Cache, filter Filter, ttl time.Duration, st stats.StatsProvider, logger zerolog.Logger) *CachedSearcher {
	return &CachedSearcher{
		next:   next,
		cache:  cache,
		filter: filter,
		prefix: DefaultCachePrefix,
		ttl:    ttl,
		stats:  st,
		log:    logger,
	}
}

func (s *CachedSearcher) Search(ctx context.Context, query string, max int) ([]types.Video, error) {
	s.stats.Incr(stats.NumSearches)
	key := buildKey(s.prefix, s.filter, query, max)

	result, err, _ := s.g.Do(key, func() (any, error) {
		cached, err := s.cache.Get(ctx, key)
		if err == nil {
			s.stats.Incr(stats.NumSearchHits)
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("cache get error")
		}

		videos, err := s.next.Search(ctx, query, max)
		if err != nil {
			return nil, err
		}

		s.asyncCacheSet(key, videos)
		return videos, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]types.Video), nil
}

func (s *CachedSearcher) asyncCacheSet(key string, videos []types.Video) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		if err := s.cache.Set(ctx, key, videos, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("cache set error")
		}
	}()
}

// Wait blocks until pending cache writes finish.
func (s *CachedSearcher) Wait() {
	s.pending.Wait()
}
