package pricing

import (
	"context"
	"time"
)

// Quote is a raw oracle reading. Price is scaled by 10^Expo.
type Quote struct {
	FeedID      string    `json:"feed_id"`
	Price       int64     `json:"price"`
	Expo        int32     `json:"expo"`
	PublishTime time.Time `json:"publish_time"`
}

// PriceSource returns the latest quote for a feed.
type PriceSource interface {
	LatestQuote(ctx context.Context, feedID string) (Quote, error)
}
