// Package ica scrapes the rendered ICA store page for weekly offer cards.
// The page is assembled client side, so a headless browser renders it and the
// card markup is then extracted offline with goquery.
package ica

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"weekly-deals/pkg/models"
	"weekly-deals/pkg/prices"
)

const (
	Store   = "ICA"
	PageURL = "https://www.ica.se/erbjudanden/ica-supermarket-hogdalen-1003514/"
)

var (
	ordPriceRe = regexp.MustCompile(`Ord\.pris\s+([0-9:.\-]+)`)
	qtyForRe   = regexp.MustCompile(`(?i)^\s*(\d+)\s*f[öo]r`)
)

type Scraper struct {
	URL     string
	Timeout time.Duration
}

func NewScraper() *Scraper {
	return &Scraper{
		URL:     PageURL,
		Timeout: 60 * time.Second,
	}
}

func (s *Scraper) Name() string { return Store }

// FetchOffers renders the offer grid and extracts one Offer per well-formed
// card. Malformed cards are skipped; a page that cannot be rendered at all is
// a source failure.
func (s *Scraper) FetchOffers(ctx context.Context) ([]models.Offer, error) {
	html, err := s.renderPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, Store, err)
	}
	return ParseOffers(html)
}

func (s *Scraper) renderPage(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	renderCtx, cancelRender := context.WithTimeout(browserCtx, s.Timeout)
	defer cancelRender()

	log.Printf("[ICA] Navigating to %s", s.URL)

	var html string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(s.URL),
		chromedp.WaitReady(`div.offers__container article`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// ParseOffers extracts offers from the rendered page markup. It only needs
// static HTML, which keeps the extraction rules testable without a browser.
func ParseOffers(html string) ([]models.Offer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, Store, err)
	}

	var offers []models.Offer
	doc.Find("div.offers__container article").Each(func(i int, card *goquery.Selection) {
		offer, err := parseCard(card)
		if err != nil {
			name := strings.TrimSpace(card.Find("p.offer-card__title").Text())
			if name == "" {
				name = "unknown"
			}
			log.Printf("[ICA] Skipping malformed card %q: %v", name, err)
			return
		}
		offers = append(offers, offer)
	})

	log.Printf("[ICA] %d offers extracted", len(offers))
	return offers, nil
}

func parseCard(card *goquery.Selection) (models.Offer, error) {
	name := strings.TrimSpace(card.Find("p.offer-card__title").Text())
	if name == "" {
		return models.Offer{}, fmt.Errorf("missing product name")
	}

	// Sale price is rendered as two visual parts: whole kronor, plus an
	// optional öre overlay.
	firstVal := card.Find(".price-splash__text__firstValue")
	if firstVal.Length() == 0 {
		return models.Offer{}, fmt.Errorf("missing sale price")
	}
	firstText := strings.TrimSuffix(strings.TrimSpace(firstVal.Text()), ":-")
	salePrice, err := strconv.ParseFloat(firstText, 64)
	if err != nil {
		return models.Offer{}, fmt.Errorf("sale price %q: %w", firstText, err)
	}

	if secText := strings.TrimSpace(card.Find(".price-splash__text__secondaryValue").Text()); secText != "" {
		if ore, err := strconv.ParseFloat("0."+secText, 64); err == nil {
			salePrice += ore
		}
	}

	// "2 för 30:-" means the splash price covers two units.
	qty := 1.0
	if prefix := strings.TrimSpace(card.Find(".price-splash__text__prefix").Text()); prefix != "" {
		if m := qtyForRe.FindStringSubmatch(prefix); m != nil {
			qty, _ = strconv.ParseFloat(m[1], 64)
			if qty <= 0 {
				return models.Offer{}, fmt.Errorf("bad quantity prefix %q", prefix)
			}
		}
	}
	salePrice /= qty

	// The ordinary price lives in a free-text blob, either a single
	// "Ord.pris 35:90" token or a range "38:90-50:90".
	text := strings.TrimSpace(card.Find("p.offer-card__text").Text())
	m := ordPriceRe.FindStringSubmatch(text)
	if m == nil {
		return models.Offer{}, fmt.Errorf("no ordinary price in %q", text)
	}
	ordinaryPrice, err := prices.ParseRange(m[1])
	if err != nil {
		return models.Offer{}, err
	}

	// Brand heuristic: the blob leads with the brand, terminated by the
	// first period. Wrong for blobs without one, but the markup exposes
	// nothing better.
	brand := strings.SplitN(text, ".", 2)[0]

	unit := "st"
	if suffix := strings.TrimSpace(card.Find(".price-splash__text__suffix").Text()); suffix != "" {
		unit = strings.TrimLeft(suffix, "/")
	}

	return models.NewOffer(Store, name, salePrice, ordinaryPrice, unit, brand)
}
