package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/elys-network/clvault/internal/types"
)

// Feeds known to the mock source, with the raw prices it returns for them.
var mockPrices = map[string]int64{
	"5867f5683c757393a0670ef0f701490950fe93fdb006d181c8265a831ac0c5c6": 164243925,
	"b00b60f88b03a6a625a8d1c048c3f66653edf217439983d037e7222c4e612819": 1031081328,
	"ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace": 278558964008,
}

// MockSource serves deterministic quotes. Quotes without an explicit publish time are
// reported as published at the current clock time, so they never go stale.
type MockSource struct {
	mu     sync.RWMutex
	now    func() time.Time
	quotes map[string]Quote
}

// NewMockSource returns a source preloaded with the well-known mock feeds.
func NewMockSource(now func() time.Time) *MockSource {
	if now == nil {
		now = time.Now
	}
	m := &MockSource{now: now, quotes: make(map[string]Quote, len(mockPrices))}
	for id, price := range mockPrices {
		m.quotes[id] = Quote{FeedID: id, Price: price, Expo: -8}
	}
	return m
}

// SetPrice overrides the price of a feed. A zero publishTime keeps the quote always fresh.
func (m *MockSource) SetPrice(feedID string, price int64, publishTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strings.ToLower(feedID)
	m.quotes[id] = Quote{FeedID: id, Price: price, Expo: -8, PublishTime: publishTime}
}

func (m *MockSource) LatestQuote(_ context.Context, feedID string) (Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[strings.ToLower(feedID)]
	if !ok {
		return Quote{}, errorsmod.Wrapf(types.ErrUnknownFeed, "feed %s", feedID)
	}
	if q.PublishTime.IsZero() {
		q.PublishTime = m.now()
	}
	return q, nil
}
