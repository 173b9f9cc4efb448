// Package coop reads the Coop discount feed, a JSON API of weekly offers
// grouped by category.
package coop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"weekly-deals/pkg/models"
)

const (
	Store   = "Coop"
	FeedURL = "https://external.api.coop.se/dke/offers/categories/offers/015120?api-version=v1&clustered=true"
)

type Scraper struct {
	Client          *http.Client
	URL             string
	SubscriptionKey string
}

func NewScraper() *Scraper {
	return &Scraper{
		Client:          &http.Client{Timeout: 20 * time.Second},
		URL:             FeedURL,
		SubscriptionKey: "3804fe145c4e4629ab9b6c755d2e3cfb",
	}
}

type feed struct {
	Categories []struct {
		Offers []rawOffer `json:"offers"`
	} `json:"categories"`
}

type rawOffer struct {
	Content struct {
		Title string `json:"title"`
		Brand string `json:"brand"`
	} `json:"content"`
	PriceInformation struct {
		OrdinaryPrice       float64 `json:"ordinaryPrice"`
		DiscountValue       float64 `json:"discountValue"`
		MinimumAmount       float64 `json:"minimumAmount"`
		IsItemPriceDiscount bool    `json:"isItemPriceDiscount"`
		Unit                string  `json:"unit"`
	} `json:"priceInformation"`
}

func (s *Scraper) Name() string { return Store }

// FetchOffers downloads the feed and normalizes every qualifying offer. An
// offer qualifies when it carries both an ordinary price and a discount value;
// a "minimum purchase amount" discount that is not already per item is divided
// down to a true per-unit sale price first.
func (s *Scraper) FetchOffers(ctx context.Context) ([]models.Offer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.SubscriptionKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "deals-scraper/1.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, Store, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", models.ErrSourceUnavailable, Store, resp.StatusCode)
	}

	var data feed
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, Store, err)
	}

	var offers []models.Offer
	for _, cat := range data.Categories {
		for _, off := range cat.Offers {
			pi := off.PriceInformation
			sale := pi.DiscountValue

			if pi.MinimumAmount > 1 && !pi.IsItemPriceDiscount {
				sale /= pi.MinimumAmount
			}

			if pi.OrdinaryPrice <= 0 || sale <= 0 {
				continue
			}

			offer, err := models.NewOffer(Store, off.Content.Title, sale, pi.OrdinaryPrice, pi.Unit, off.Content.Brand)
			if err != nil {
				continue
			}
			offers = append(offers, offer)
		}
	}
	return offers, nil
}
