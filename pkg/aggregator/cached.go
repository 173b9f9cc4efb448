package aggregator

import (
	"context"
	"sync"

	"weekly-deals/pkg/cache"
	"weekly-deals/pkg/logger"
	"weekly-deals/pkg/models"
)

// CachedOfferSource memoizes an offer source through the shared cache. The
// mutex single-flights recomputation per store, so concurrent callers past the
// freshness window trigger one upstream fetch, not one each.
type CachedOfferSource struct {
	mu    sync.Mutex
	inner OfferSource
	cache *cache.Cache
}

func NewCachedOfferSource(c *cache.Cache, inner OfferSource) *CachedOfferSource {
	return &CachedOfferSource{inner: inner, cache: c}
}

func (s *CachedOfferSource) Name() string { return s.inner.Name() }

func (s *CachedOfferSource) FetchOffers(ctx context.Context) ([]models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offers, ok := s.cache.Offers(s.inner.Name()); ok {
		logger.Dedup("Cache hit for %s offers", s.inner.Name())
		return offers, nil
	}

	offers, err := s.inner.FetchOffers(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetOffers(s.inner.Name(), offers)
	return offers, nil
}

// CachedFlyerSource is the flyer-URL counterpart. "" is cached too: a week
// with no leaflet should not be re-checked on every request either.
type CachedFlyerSource struct {
	mu    sync.Mutex
	inner FlyerSource
	cache *cache.Cache
}

func NewCachedFlyerSource(c *cache.Cache, inner FlyerSource) *CachedFlyerSource {
	return &CachedFlyerSource{inner: inner, cache: c}
}

func (s *CachedFlyerSource) Name() string { return s.inner.Name() }

func (s *CachedFlyerSource) FetchFlyerURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if url, ok := s.cache.FlyerURL(s.inner.Name()); ok {
		logger.Dedup("Cache hit for %s flyer", s.inner.Name())
		return url, nil
	}

	url, err := s.inner.FetchFlyerURL(ctx)
	if err != nil {
		return "", err
	}
	s.cache.SetFlyerURL(s.inner.Name(), url)
	return url, nil
}
