// Package lidl finds the current Lidl weekly flyer. Lidl publishes its
// promotions as a PDF leaflet rather than structured offers, so the contract
// here is a document URL, not an offer list.
package lidl

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gocolly/colly/v2"
)

const (
	Store    = "Lidl"
	StoreURL = "https://www.lidl.se/s/sv-SE/butiker/enskede/bussens-vaeg-5/"

	// Carousel entries are matched by display-text prefix; the weekly deals
	// leaflet is titled "ERBJUDANDEN v.XX".
	leafletTitlePrefix = "ERBJUDANDEN"
)

type Scraper struct {
	Collector *colly.Collector
	URL       string
	Timeout   time.Duration
}

func NewScraper() *Scraper {
	c := colly.NewCollector(
		colly.AllowedDomains("www.lidl.se"),
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"),
		// The store page is re-fetched on every cache refresh.
		colly.AllowURLRevisit(),
	)
	return &Scraper{
		Collector: c,
		URL:       StoreURL,
		Timeout:   90 * time.Second,
	}
}

func (s *Scraper) Name() string { return Store }

// FetchFlyerURL walks the store page to the current leaflet PDF: locate the
// deals entry in the leaflet carousel, follow its link, dismiss the consent
// dialog if one appears, open the viewer menu to reveal the download link and
// return its target. Steps that merely fail to find their element yield "";
// the menu control is expected to exist, so not being able to click it is an
// error. When the browser flow finds nothing, the static store page is scanned
// for a leaflet link as a fallback.
func (s *Scraper) FetchFlyerURL(ctx context.Context) (string, error) {
	url, err := s.browserFlyerURL(ctx)
	if err != nil {
		return "", err
	}
	if url != "" {
		return url, nil
	}

	url, err = s.StoreFlyerLink()
	if err != nil {
		log.Printf("[Lidl] Store page fallback failed: %v", err)
		return "", nil
	}
	return url, nil
}

func (s *Scraper) browserFlyerURL(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	flowCtx, cancelFlow := context.WithTimeout(browserCtx, s.Timeout)
	defer cancelFlow()

	log.Printf("[Lidl] Navigating to %s", s.URL)

	var leafletHref string
	err := chromedp.Run(flowCtx,
		chromedp.Navigate(s.URL),
		chromedp.WaitReady(`p.leaflet-carousel__title`, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`
			(function() {
				const titles = document.querySelectorAll('p.leaflet-carousel__title');
				for (const t of titles) {
					if (!t.innerText.trim().startsWith(%q)) continue;
					const li = t.closest('li');
					if (!li) continue;
					const a = li.querySelector('a');
					if (a) return a.href;
				}
				return "";
			})()
		`, leafletTitlePrefix), &leafletHref),
	)
	if err != nil {
		return "", fmt.Errorf("leaflet carousel: %w", err)
	}
	if leafletHref == "" {
		log.Printf("[Lidl] No %s leaflet in carousel", leafletTitlePrefix)
		return "", nil
	}

	// Consent dialog is optional; its absence is not a failure.
	err = chromedp.Run(flowCtx,
		chromedp.Navigate(leafletHref),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Evaluate(`document.querySelector('#onetrust-accept-btn-handler')?.click(); true`, nil),
	)
	if err != nil {
		return "", fmt.Errorf("leaflet page: %w", err)
	}

	// The viewer menu reveals the download link; it is expected to exist.
	var pdfHref string
	err = chromedp.Run(flowCtx,
		chromedp.WaitVisible(`button[aria-label='Meny']`, chromedp.ByQuery),
		chromedp.Click(`button[aria-label='Meny']`, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`document.querySelector("a[href$='.pdf']")?.href || ""`, &pdfHref),
	)
	if err != nil {
		return "", fmt.Errorf("viewer menu: %w", err)
	}
	return pdfHref, nil
}

// StoreFlyerLink scans the static store page for the first leaflet
// ("reklamblad") link, resolved against the page URL. The collector is cloned
// per call so repeated lookups do not stack handlers on the shared instance.
func (s *Scraper) StoreFlyerLink() (string, error) {
	var flyerURL string

	c := s.Collector.Clone()
	c.OnHTML(`a[href]`, func(e *colly.HTMLElement) {
		if flyerURL != "" {
			return
		}
		href := e.Attr("href")
		if strings.Contains(href, "reklamblad") {
			flyerURL = e.Request.AbsoluteURL(href)
		}
	})

	if err := c.Visit(s.URL); err != nil {
		return "", err
	}
	if flyerURL == "" {
		log.Println("[Lidl] No reklamblad link on store page")
	}
	return flyerURL, nil
}
