// Package aggregator fans out to every retailer, merges their offers and
// ranks them by discount percentage. A failing retailer contributes nothing;
// it never takes the page down with it.
package aggregator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"weekly-deals/pkg/models"
)

// OfferSource is a retailer that yields structured offers.
type OfferSource interface {
	Name() string
	FetchOffers(ctx context.Context) ([]models.Offer, error)
}

// FlyerSource is a retailer that only publishes a document link.
type FlyerSource interface {
	Name() string
	FetchFlyerURL(ctx context.Context) (string, error)
}

type Aggregator struct {
	offerSources []OfferSource
	flyerSources []FlyerSource
	fetchTimeout time.Duration
}

func New(fetchTimeout time.Duration) *Aggregator {
	return &Aggregator{fetchTimeout: fetchTimeout}
}

func (a *Aggregator) AddOfferSource(src OfferSource) {
	a.offerSources = append(a.offerSources, src)
}

func (a *Aggregator) AddFlyerSource(src FlyerSource) {
	a.flyerSources = append(a.flyerSources, src)
}

// RankedDeals fetches every source in parallel, each with its own timeout.
// Offers come back merged and sorted by pct_off descending; ties keep source
// registration order, then each source's own extraction order. Flyer URLs are
// keyed by retailer name; a retailer whose fetch failed or found nothing maps
// to "".
func (a *Aggregator) RankedDeals(ctx context.Context) ([]models.Offer, map[string]string) {
	offersBySource := make([][]models.Offer, len(a.offerSources))
	flyers := make(map[string]string, len(a.flyerSources))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, src := range a.offerSources {
		wg.Add(1)
		go func(i int, src OfferSource) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()

			offers, err := src.FetchOffers(sctx)
			if err != nil {
				log.Printf("Offer source %s failed: %v", src.Name(), err)
				return
			}
			offersBySource[i] = offers
		}(i, src)
	}

	for _, src := range a.flyerSources {
		wg.Add(1)
		go func(src FlyerSource) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()

			url, err := src.FetchFlyerURL(sctx)
			if err != nil {
				log.Printf("Flyer source %s failed: %v", src.Name(), err)
				url = ""
			}
			mu.Lock()
			flyers[src.Name()] = url
			mu.Unlock()
		}(src)
	}

	wg.Wait()

	var merged []models.Offer
	for _, offers := range offersBySource {
		merged = append(merged, offers...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PctOff > merged[j].PctOff
	})

	return merged, flyers
}

// RankedOffers is RankedDeals without the flyer pass-through.
func (a *Aggregator) RankedOffers(ctx context.Context) []models.Offer {
	offers, _ := a.RankedDeals(ctx)
	return offers
}
