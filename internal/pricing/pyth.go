/*
This file fetches spot prices from the Pyth Hermes price service.

Every quote is validated before it reaches the vault: a wrong price mints the wrong number of shares.
*/

package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
)

var pythLogger = logger.GetForComponent("pyth_price_source")

var ErrInvalidQuote = errors.New("invalid quote received")

const (
	LATEST_PRICE_PATH = "/v2/updates/price/latest"
	MAX_RETRIES       = 3
	TIMEOUT_SECONDS   = 10
)

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// PythSource reads the latest price of a feed from Hermes.
type PythSource struct {
	endpoint string
	client   *http.Client
}

func NewPythSource(endpoint string) *PythSource {
	return &PythSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
	}
}

func (p *PythSource) LatestQuote(ctx context.Context, feedID string) (Quote, error) {
	url := fmt.Sprintf("%s%s?ids[]=%s&parsed=true", p.endpoint, LATEST_PRICE_PATH, feedID)

	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		quote, err := p.fetch(ctx, url, feedID)
		if err == nil {
			return quote, nil
		}
		lastErr = err
		// A malformed quote will not fix itself on retry.
		if errors.Is(err, ErrInvalidQuote) || errors.Is(err, types.ErrUnknownFeed) {
			break
		}

		pythLogger.Warn().
			Err(err).
			Str("feed", feedID).
			Int("attempt", attempt).
			Msg("Price request failed, will retry if attempts remain")

		if attempt < MAX_RETRIES {
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}

	pythLogger.Error().Err(lastErr).Str("feed", feedID).Msg("All price request attempts failed")
	return Quote{}, fmt.Errorf("failed to fetch price for feed %s: %w", feedID, lastErr)
}

func (p *PythSource) fetch(ctx context.Context, url, feedID string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, errorsmod.Wrapf(types.ErrUnknownFeed, "feed %s", feedID)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("hermes returned status %d for %s", resp.StatusCode, feedID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read response body for %s: %w", feedID, err)
	}
	return parseHermesQuote(body, feedID)
}

// parseHermesQuote extracts and validates the quote for feedID from a Hermes response body.
func parseHermesQuote(body []byte, feedID string) (Quote, error) {
	var parsed hermesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, fmt.Errorf("%w: failed to parse JSON response for %s: %v", ErrInvalidQuote, feedID, err)
	}

	want := strings.TrimPrefix(strings.ToLower(feedID), "0x")
	for _, entry := range parsed.Parsed {
		if strings.TrimPrefix(strings.ToLower(entry.ID), "0x") != want {
			continue
		}
		price, err := strconv.ParseInt(entry.Price.Price, 10, 64)
		if err != nil {
			return Quote{}, fmt.Errorf("%w: price %q for %s is not an integer", ErrInvalidQuote, entry.Price.Price, feedID)
		}
		if price <= 0 {
			return Quote{}, fmt.Errorf("%w: price for %s must be positive: %d", ErrInvalidQuote, feedID, price)
		}
		if entry.Price.PublishTime <= 0 {
			return Quote{}, fmt.Errorf("%w: invalid publish time for %s: %d", ErrInvalidQuote, feedID, entry.Price.PublishTime)
		}
		return Quote{
			FeedID:      want,
			Price:       price,
			Expo:        entry.Price.Expo,
			PublishTime: time.Unix(entry.Price.PublishTime, 0),
		}, nil
	}
	return Quote{}, errorsmod.Wrapf(types.ErrUnknownFeed, "feed %s missing from response", feedID)
}
