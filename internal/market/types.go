package market

import (
	"context"
	"time"
)

// Candle represents a single OHLCV bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker represents the latest market snapshot for a symbol
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Volume24h float64 `json:"volume_24h"`
	Change24h float64 `json:"change_24h"`
}

// Balance represents available and total funds for one currency
type Balance struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
	Total     float64 `json:"total"`
}

// OrderResult is returned by an executor after an order is accepted
type OrderResult struct {
	OrderID     string  `json:"order_id"`
	FilledPrice float64 `json:"filled_price"`
}

// DataSource provides historical candles and live tickers.
// Implementations may return fewer candles than requested when the
// symbol has a short history; callers must tolerate partial windows.
type DataSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
}

// AccountSource provides account balances
type AccountSource interface {
	GetBalance(ctx context.Context, currency string) (*Balance, error)
}

// OrderExecutor places orders on the exchange
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, symbol, side, orderType string, size, price float64) (*OrderResult, error)
}
