// Package cache memoizes per-retailer fetch results for a fixed freshness
// window, backed by sqlite so a restart does not hammer the upstream sites.
package cache

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"weekly-deals/pkg/models"
)

const (
	KindOffers = "offers"
	KindFlyer  = "flyer"
)

type Cache struct {
	db     *sql.DB
	window time.Duration
	now    func() time.Time
}

type Option func(*Cache)

// WithClock replaces the cache's notion of now. Tests use it to step past the
// freshness window without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(dbPath string, window time.Duration, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			store TEXT NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			fetched_at DATETIME NOT NULL,
			PRIMARY KEY (store, kind)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db, window: window, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Offers returns the cached offer list for a store, or false when there is no
// entry fresher than the window.
func (c *Cache) Offers(store string) ([]models.Offer, bool) {
	data, ok := c.lookup(store, KindOffers)
	if !ok {
		return nil, false
	}
	var offers []models.Offer
	if err := json.Unmarshal([]byte(data), &offers); err != nil {
		log.Printf("Cache: failed to unmarshal offers for %s: %v", store, err)
		return nil, false
	}
	return offers, true
}

func (c *Cache) SetOffers(store string, offers []models.Offer) {
	data, err := json.Marshal(offers)
	if err != nil {
		log.Printf("Cache: failed to marshal offers for %s: %v", store, err)
		return
	}
	c.store(store, KindOffers, string(data))
}

// FlyerURL returns the cached flyer URL for a store. An empty string is a
// valid cached value: it records that the last fetch found no flyer.
func (c *Cache) FlyerURL(store string) (string, bool) {
	return c.lookup(store, KindFlyer)
}

func (c *Cache) SetFlyerURL(store, url string) {
	c.store(store, KindFlyer, url)
}

func (c *Cache) lookup(store, kind string) (string, bool) {
	var data string
	var fetchedAt time.Time

	err := c.db.QueryRow(
		`SELECT data, fetched_at FROM results WHERE store = ? AND kind = ?`,
		store, kind,
	).Scan(&data, &fetchedAt)
	if err != nil {
		return "", false
	}

	if c.now().Sub(fetchedAt) > c.window {
		return "", false
	}
	return data, true
}

// store replaces the entry wholesale; an entry is never partially updated.
func (c *Cache) store(store, kind, data string) {
	_, err := c.db.Exec(
		`INSERT INTO results (store, kind, data, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(store, kind)
		 DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		store, kind, data, c.now(),
	)
	if err != nil {
		log.Printf("Cache: failed to store %s/%s: %v", store, kind, err)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
