package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"

	"weekly-deals/pkg/aggregator"
	"weekly-deals/pkg/api"
	"weekly-deals/pkg/cache"
	"weekly-deals/pkg/scrapers/coop"
	"weekly-deals/pkg/scrapers/ica"
	"weekly-deals/pkg/scrapers/lidl"
	"weekly-deals/pkg/web"
)

// Attribution links shown on the page, one per retailer.
var linkURLs = map[string]string{
	coop.Store: "https://www.coop.se/butiker-erbjudanden/coop/coop-hogdalen/",
	ica.Store:  ica.PageURL,
	lidl.Store: lidl.StoreURL,
}

var (
	deals        *aggregator.Aggregator
	flyerSources = map[string]aggregator.FlyerSource{}
	limiter      = newRateLimiter(2 * time.Second)
	renderPage   = web.RenderDeals
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	dbPath := os.Getenv("CACHE_DB_PATH")
	if dbPath == "" {
		dbPath = "./cache.db"
	}

	ttlSeconds := 300
	if val := os.Getenv("CACHE_TTL_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			ttlSeconds = parsed
		}
	}

	resultCache, err := cache.New(dbPath, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer resultCache.Close()

	log.Printf("Cache initialized at %s with freshness window %ds", dbPath, ttlSeconds)

	deals = aggregator.New(2 * time.Minute)
	deals.AddOfferSource(aggregator.NewCachedOfferSource(resultCache, coop.NewScraper()))
	deals.AddOfferSource(aggregator.NewCachedOfferSource(resultCache, ica.NewScraper()))

	lidlFlyer := aggregator.NewCachedFlyerSource(resultCache, lidl.NewScraper())
	deals.AddFlyerSource(lidlFlyer)
	flyerSources[strings.ToLower(lidl.Store)] = lidlFlyer

	http.HandleFunc("/", rootHandler)
	http.HandleFunc("/api/deals", dealsAPIHandler)
	http.HandleFunc("/flyer/", flyerProxyHandler)

	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), port)
	}
	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/docs\n", port)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           nil,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/docs" {
		docsHandler(w, r)
		return
	}
	if r.URL.Path != "/" {
		api.WriteNotFound(w, "No such page", r.URL.Path)
		return
	}
	if !limiter.allow(clientIP(r)) {
		api.WriteTooManyRequests(w, "Slow down; the page refreshes at most every few seconds.", r.URL.Path)
		return
	}

	offers, flyers := deals.RankedDeals(r.Context())

	// Render into a buffer first so a mid-template failure produces a clean
	// error response instead of problem JSON appended to partial HTML.
	var buf bytes.Buffer
	err := renderPage(&buf, web.PageContext{
		Deals:     offers,
		Flyers:    flyers,
		LinkURLs:  linkURLs,
		FetchedAt: time.Now(),
	})
	if err != nil {
		log.Printf("Error rendering page: %v", err)
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("Error writing page: %v", err)
	}
}

func dealsAPIHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}
	if !limiter.allow(clientIP(r)) {
		api.WriteTooManyRequests(w, "Slow down; deals refresh at most every few seconds.", r.URL.Path)
		return
	}

	offers, flyers := deals.RankedDeals(r.Context())

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{
		"deals":  offers,
		"flyers": flyers,
		"links":  linkURLs,
	})
	if err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// flyerProxyHandler streams the retailer's flyer PDF so the page can embed it
// without sending visitors off-site. Path: /flyer/{store}
func flyerProxyHandler(w http.ResponseWriter, r *http.Request) {
	store := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/flyer/"))

	src, ok := flyerSources[store]
	if !ok {
		api.WriteBadRequest(w, "Store has no flyer. Available: lidl", r.URL.Path)
		return
	}

	url, err := src.FetchFlyerURL(r.Context())
	if err != nil {
		api.WriteBadGateway(w, "Flyer lookup failed: "+err.Error(), r.URL.Path)
		return
	}
	if url == "" {
		api.WriteNotFound(w, "No current flyer for "+store, r.URL.Path)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		api.WriteBadGateway(w, "Flyer download failed: "+err.Error(), r.URL.Path)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		api.WriteBadGateway(w, "Flyer download failed: "+err.Error(), r.URL.Path)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		api.WriteBadGateway(w, fmt.Sprintf("Flyer upstream returned status %d", resp.StatusCode), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("Error streaming flyer: %v", err)
	}
}

func docsHandler(w http.ResponseWriter, r *http.Request) {
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Weekly Deals API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP
}

// rateLimiter is a process-local per-IP throttle. It resets on restart and
// does not coordinate across instances.
type rateLimiter struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{
		lastSeen: make(map[string]time.Time),
		interval: interval,
	}
}

func (l *rateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastSeen[ip]; ok && time.Since(last) < l.interval {
		return false
	}
	l.lastSeen[ip] = time.Now()
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
