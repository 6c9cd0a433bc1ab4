package quote

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaSource resolves prices from Alpaca market data using the latest
// trade for the symbol. The client reads APCA_API_KEY_ID and
// APCA_API_SECRET_KEY from the environment.
type AlpacaSource struct {
	client *marketdata.Client
}

var _ Source = (*AlpacaSource)(nil)

// NewAlpacaSource creates a live quote source backed by Alpaca.
func NewAlpacaSource() *AlpacaSource {
	return &AlpacaSource{
		client: marketdata.NewClient(marketdata.ClientOpts{}),
	}
}

// Price returns the latest trade price for the symbol.
func (s *AlpacaSource) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	trade, err := s.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return decimal.NewFromFloat(trade.Price), nil
}
