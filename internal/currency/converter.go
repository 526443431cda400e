// Package currency keeps all stored amounts in one base currency and
// converts them for display through a cached exchange-rate table.
//
// Rates degrade through three tiers: live fetch, durable cached snapshot,
// built-in fallback table. Conversion is a total function: once any tier
// has been installed it never fails, whatever currency code it is given.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	cacheKeyCurrent  = "rates:current"
	cacheKeyPrevious = "rates:previous"
)

// ErrSourceUnavailable wraps every failure of the external rate source.
// Callers log it; it is never surfaced as a user-visible failure.
var ErrSourceUnavailable = errors.New("rate source unavailable")

// Config holds converter configuration.
type Config struct {
	BaseCurrency string
	FetchTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseCurrency: "INR",
		FetchTimeout: 10 * time.Second,
	}
}

// snapshot is the JSON shape persisted to the SnapshotStore.
type snapshot struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Converter owns the in-memory rate table plus the immediately-previous
// snapshot for day-over-day change widgets.
type Converter struct {
	source RateSource
	store  SnapshotStore
	config Config

	mu            sync.RWMutex
	rates         map[string]float64
	previous      map[string]float64
	fetchedAt     time.Time
	prevFetchedAt time.Time

	now func() time.Time // stubbed in tests
}

// NewConverter creates a converter. Call Load once at startup to prime the
// in-memory table from the cache (or the built-in fallback).
func NewConverter(source RateSource, store SnapshotStore, config Config) *Converter {
	if config.BaseCurrency == "" {
		config.BaseCurrency = DefaultConfig().BaseCurrency
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Converter{
		source: source,
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// Load primes the in-memory rate table from the durable cache. Cache age
// does not matter here: a stale snapshot still beats the built-in table.
// With no readable cache the fallback table is installed, so the converter
// is usable as soon as Load returns.
func (c *Converter) Load(ctx context.Context) {
	current, curOK := c.loadSnapshot(ctx, cacheKeyCurrent)
	previous, prevOK := c.loadSnapshot(ctx, cacheKeyPrevious)

	c.mu.Lock()
	defer c.mu.Unlock()

	if curOK {
		c.rates = current.Rates
		c.fetchedAt = current.FetchedAt
		slog.InfoContext(ctx, "Loaded exchange rates from cache",
			"base", c.config.BaseCurrency,
			"currencies", len(current.Rates),
			"fetched_at", current.FetchedAt.Format(time.RFC3339))
	} else {
		c.rates = fallbackRates(c.config.BaseCurrency)
		slog.WarnContext(ctx, "No cached exchange rates, using built-in fallback table",
			"base", c.config.BaseCurrency)
	}

	if prevOK {
		c.previous = previous.Rates
		c.prevFetchedAt = previous.FetchedAt
	}
}

// Refresh fetches a fresh rate table from the external source.
//
// A successful same-calendar-day fetch short-circuits unless force is set;
// a snapshot older than 24 hours never satisfies that shortcut. On fetch
// failure the in-memory state is left untouched when already populated,
// otherwise the cache and then the fallback table are installed. The
// returned error is for logging only: the converter is always usable
// after Refresh returns.
func (c *Converter) Refresh(ctx context.Context, force bool) error {
	now := c.now()

	if !force && c.fetchedToday(now) {
		slog.DebugContext(ctx, "Exchange rates already fetched today, skipping refresh")
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	fetched, err := c.source.Fetch(fetchCtx, c.config.BaseCurrency)
	if err != nil || len(fetched) == 0 {
		if err == nil {
			err = errors.New("empty rate table")
		}
		c.recoverFromFailedFetch(ctx)
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	fetched[c.config.BaseCurrency] = 1.0

	c.mu.Lock()
	// Only a table from a real fetch becomes the previous snapshot; the
	// built-in fallback has no fetch timestamp and would fake a
	// day-over-day movement.
	if len(c.rates) > 0 && !c.fetchedAt.IsZero() {
		c.previous = c.rates
		c.prevFetchedAt = c.fetchedAt
	}
	c.rates = fetched
	c.fetchedAt = now
	c.mu.Unlock()

	slog.InfoContext(ctx, "Exchange rates refreshed",
		"base", c.config.BaseCurrency,
		"currencies", len(fetched))

	// The cache is advisory: a failed write only costs the next cold start
	// its freshest snapshot.
	c.persistSnapshots(ctx)

	return nil
}

// recoverFromFailedFetch guarantees a usable in-memory table after a fetch
// failure: keep what is loaded, else cache, else fallback.
func (c *Converter) recoverFromFailedFetch(ctx context.Context) {
	c.mu.RLock()
	populated := len(c.rates) > 0
	c.mu.RUnlock()
	if populated {
		return
	}
	c.Load(ctx)
}

// Convert converts an amount between two currencies through the base
// currency. Identity when the codes match; unknown codes convert at 1.0
// (degraded accuracy, never a crash).
func (c *Converter) Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return amount / c.rateLocked(from) * c.rateLocked(to)
}

// Rate returns how many units of the given currency one unit of the base
// currency buys. Total: unknown codes report 1.0.
func (c *Converter) Rate(code string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateLocked(code)
}

func (c *Converter) rateLocked(code string) float64 {
	if code == c.config.BaseCurrency {
		return 1.0
	}
	if r, ok := c.rates[code]; ok && r > 0 {
		return r
	}
	return 1.0
}

// RateChange returns the day-over-day percentage movement for a currency.
// ok is false when no previous snapshot exists or its rate is zero.
func (c *Converter) RateChange(code string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.previous == nil {
		return 0, false
	}
	prev, ok := c.previous[code]
	if !ok || prev == 0 {
		return 0, false
	}
	current := c.rateLocked(code)
	return (current - prev) / prev * 100, true
}

// Rates returns a copy of the current rate table.
func (c *Converter) Rates() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]float64, len(c.rates))
	for code, r := range c.rates {
		out[code] = r
	}
	return out
}

// BaseCurrency returns the currency all amounts are stored in.
func (c *Converter) BaseCurrency() string {
	return c.config.BaseCurrency
}

// FetchedAt returns when the current table was fetched; zero for the
// built-in fallback table.
func (c *Converter) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// fetchedToday reports whether the current table already counts as "fetched
// today": same calendar day and younger than 24 hours. Staleness only
// disqualifies this shortcut, never the table's use as a fallback.
func (c *Converter) fetchedToday(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fetchedAt.IsZero() {
		return false
	}
	fy, fm, fd := c.fetchedAt.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return fy == ny && fm == nm && fd == nd && now.Sub(c.fetchedAt) < 24*time.Hour
}

func (c *Converter) loadSnapshot(ctx context.Context, key string) (snapshot, bool) {
	if c.store == nil {
		return snapshot{}, false
	}

	raw, ok, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read rate cache", "key", key, "error", err)
		return snapshot{}, false
	}
	if !ok {
		return snapshot{}, false
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		slog.WarnContext(ctx, "Corrupt rate cache entry", "key", key, "error", err)
		return snapshot{}, false
	}
	if len(snap.Rates) == 0 {
		return snapshot{}, false
	}
	return snap, true
}

func (c *Converter) persistSnapshots(ctx context.Context) {
	if c.store == nil {
		return
	}

	c.mu.RLock()
	current := snapshot{Base: c.config.BaseCurrency, Rates: c.rates, FetchedAt: c.fetchedAt}
	previous := snapshot{Base: c.config.BaseCurrency, Rates: c.previous, FetchedAt: c.prevFetchedAt}
	c.mu.RUnlock()

	c.putSnapshot(ctx, cacheKeyCurrent, current)
	if len(previous.Rates) > 0 {
		c.putSnapshot(ctx, cacheKeyPrevious, previous)
	}
}

func (c *Converter) putSnapshot(ctx context.Context, key string, snap snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal rate snapshot", "key", key, "error", err)
		return
	}
	if err := c.store.PutCacheEntry(ctx, key, string(raw)); err != nil {
		slog.WarnContext(ctx, "Failed to persist rate snapshot", "key", key, "error", err)
	}
}
