/*

This file wraps the external spot-price feed. The adapter caches the last
known value and never fails the caller: any fetch problem degrades to the
cached price.

*/

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Div1912/Ageis/internal/logger"
	"golang.org/x/time/rate"
)

var oracleLogger = logger.GetForComponent("price_oracle")

const (
	requestTimeout = 8 * time.Second

	// Seed value used until the first successful fetch; matches the feed's
	// typical quote for the tracked pair so a cold cache is not absurd.
	defaultSeedPrice = 0.18
)

// pricePoint tolerates the feed's three field spellings; latest point wins.
type pricePoint struct {
	Price float64 `json:"price"`
	Close float64 `json:"close"`
	Value float64 `json:"value"`
}

func (p pricePoint) best() float64 {
	if p.Price > 0 {
		return p.Price
	}
	if p.Close > 0 {
		return p.Close
	}
	return p.Value
}

// Oracle fetches the spot price for one asset against one currency.
type Oracle struct {
	baseURL  string
	assetID  string
	currency string
	http     *http.Client
	limiter  *rate.Limiter

	mu        sync.RWMutex
	lastKnown float64
	lastFetch time.Time
}

// New builds an Oracle for GET {baseURL}/asset/{assetID}/prices?currency={currency}.
func New(baseURL, assetID, currency string) *Oracle {
	return &Oracle{
		baseURL:   baseURL,
		assetID:   assetID,
		currency:  currency,
		http:      &http.Client{Timeout: requestTimeout},
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		lastKnown: defaultSeedPrice,
	}
}

// Price returns the current spot price. It never returns an error: on any
// failure the last known value is returned instead.
func (o *Oracle) Price(ctx context.Context) float64 {
	price, err := o.fetch(ctx)
	if err != nil {
		oracleLogger.Warn().Err(err).Msg("Price fetch failed, using last known value")
		return o.LastKnown()
	}

	o.mu.Lock()
	o.lastKnown = price
	o.lastFetch = time.Now()
	o.mu.Unlock()
	return price
}

// LastKnown returns the cached price without touching the network.
func (o *Oracle) LastKnown() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastKnown
}

// LastFetch returns when the cache was last refreshed from the feed; zero if
// it never was.
func (o *Oracle) LastFetch() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastFetch
}

func (o *Oracle) fetch(ctx context.Context) (float64, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/asset/%s/prices?currency=%s", o.baseURL, o.assetID, o.currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "aegis-monitor/1.0")

	resp, err := o.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var points []pricePoint
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return 0, fmt.Errorf("malformed price feed response: %w", err)
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("price feed returned no points")
	}

	latest := points[len(points)-1].best()
	if latest <= 0 {
		return 0, fmt.Errorf("price feed returned non-positive price %f", latest)
	}
	return latest, nil
}
