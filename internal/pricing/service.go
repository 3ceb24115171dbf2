package pricing

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
)

// PriceDecimals is the fixed point precision of every price the service returns.
const PriceDecimals = 18

// Service converts oracle quotes into 18 decimal USD prices per base unit of an asset.
// It never caches: every call reads the source.
type Service struct {
	source PriceSource
	logger zerolog.Logger
}

func NewService(source PriceSource) *Service {
	return &Service{source: source, logger: logger.GetForComponent("pricing")}
}

// NewServiceForOracle selects the price source from the configured oracle address.
func NewServiceForOracle(oracle string, now func() time.Time, hermesEndpoint string) *Service {
	if oracle == config.MockOracleAddress {
		return NewService(NewMockSource(now))
	}
	return NewService(NewPythSource(hermesEndpoint))
}

// Source returns the underlying price source.
func (s *Service) Source() PriceSource {
	return s.source
}

// PriceOf returns price * 10^18 / 10^decimals of the asset, failing with ErrStalePrice when
// the quote is older than expiry seconds at now.
func (s *Service) PriceOf(ctx context.Context, asset types.Asset, now time.Time, expiry uint64) (math.Int, error) {
	q, err := s.source.LatestQuote(ctx, asset.PriceFeedID)
	if err != nil {
		return math.Int{}, err
	}

	age := now.Sub(q.PublishTime)
	if age > time.Duration(expiry)*time.Second {
		s.logger.Warn().
			Str("denom", asset.Denom).
			Str("feed", asset.PriceFeedID).
			Dur("age", age).
			Uint64("expiry", expiry).
			Msg("Rejecting stale price")
		return math.Int{}, errorsmod.Wrapf(types.ErrStalePrice, "%s price older than %d seconds", asset.Denom, expiry)
	}
	if q.Price < 0 {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidPrice, "%s price is negative: %d", asset.Denom, q.Price)
	}

	price := math.NewInt(q.Price).
		Mul(math.NewIntWithDecimal(1, PriceDecimals)).
		Quo(math.NewIntWithDecimal(1, int(asset.Decimals)))

	s.logger.Debug().
		Str("denom", asset.Denom).
		Int64("raw", q.Price).
		Str("price", price.String()).
		Msg("Priced asset")
	return price, nil
}

// Prices returns the prices of both vault assets from the same instant.
func (s *Service) Prices(ctx context.Context, cfg types.Config, now time.Time) (math.Int, math.Int, error) {
	p0, err := s.PriceOf(ctx, cfg.Asset0, now, cfg.PriceExpiry)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	p1, err := s.PriceOf(ctx, cfg.Asset1, now, cfg.PriceExpiry)
	if err != nil {
		return math.Int{}, math.Int{}, err
	}
	return p0, p1, nil
}
