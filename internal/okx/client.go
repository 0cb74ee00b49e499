package okx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"okx-trading-bot/internal/market"
)

// Credentials holds the OKX API key set
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// APIError is a non-zero code in an OKX response envelope
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx api error %s: %s", e.Code, e.Message)
}

// envelope is the common OKX response wrapper
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client is an OKX v5 REST client. It implements market.DataSource,
// market.AccountSource and market.OrderExecutor.
type Client struct {
	baseURL    string
	creds      Credentials
	demoMode   bool
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an OKX REST client
func NewClient(baseURL string, creds Credentials, demoMode bool, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		creds:    creds,
		demoMode: demoMode,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "okx").Logger(),
	}
}

// GetCandles fetches up to limit candles for the symbol, oldest first.
// A short history returns fewer candles, not an error.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("instId", symbol)
	params.Set("bar", interval)
	params.Set("limit", strconv.Itoa(limit))

	var rows [][]string
	if err := c.request(ctx, http.MethodGet, "/api/v5/market/candles?"+params.Encode(), nil, false, &rows); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", symbol, err)
	}

	// OKX returns newest first
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}

		ts, _ := strconv.ParseInt(row[0], 10, 64)
		candles = append(candles, market.Candle{
			OpenTime: time.UnixMilli(ts),
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		})
	}

	return candles, nil
}

type tickerData struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	BidPx   string `json:"bidPx"`
	AskPx   string `json:"askPx"`
	Vol24h  string `json:"vol24h"`
	Open24h string `json:"open24h"`
}

// GetTicker fetches the latest ticker for the symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (*market.Ticker, error) {
	params := url.Values{}
	params.Set("instId", symbol)

	var data []tickerData
	if err := c.request(ctx, http.MethodGet, "/api/v5/market/ticker?"+params.Encode(), nil, false, &data); err != nil {
		return nil, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("get ticker %s: empty response", symbol)
	}

	t := data[0]
	last := parseFloat(t.Last)
	open := parseFloat(t.Open24h)

	change := 0.0
	if open > 0 {
		change = (last - open) / open * 100
	}

	return &market.Ticker{
		Symbol:    t.InstID,
		Last:      last,
		Bid:       parseFloat(t.BidPx),
		Ask:       parseFloat(t.AskPx),
		Volume24h: parseFloat(t.Vol24h),
		Change24h: change,
	}, nil
}

type balanceData struct {
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailBal string `json:"availBal"`
		Eq       string `json:"eq"`
	} `json:"details"`
}

// GetBalance fetches the account balance for one currency
func (c *Client) GetBalance(ctx context.Context, currency string) (*market.Balance, error) {
	params := url.Values{}
	params.Set("ccy", currency)

	var data []balanceData
	if err := c.request(ctx, http.MethodGet, "/api/v5/account/balance?"+params.Encode(), nil, true, &data); err != nil {
		return nil, fmt.Errorf("get balance %s: %w", currency, err)
	}

	balance := &market.Balance{Currency: currency}
	if len(data) > 0 {
		for _, d := range data[0].Details {
			if d.Ccy == currency {
				balance.Available = parseFloat(d.AvailBal)
				balance.Total = parseFloat(d.Eq)
				break
			}
		}
	}

	return balance, nil
}

type orderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px,omitempty"`
}

type orderData struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

// PlaceOrder submits a spot order. Price is ignored for market orders.
func (c *Client) PlaceOrder(ctx context.Context, symbol, side, orderType string, size, price float64) (*market.OrderResult, error) {
	req := orderRequest{
		InstID:  symbol,
		TdMode:  "cash",
		Side:    side,
		OrdType: orderType,
		Sz:      strconv.FormatFloat(size, 'f', -1, 64),
	}
	if orderType == "limit" {
		req.Px = strconv.FormatFloat(price, 'f', -1, 64)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	var data []orderData
	if err := c.request(ctx, http.MethodPost, "/api/v5/trade/order", body, true, &data); err != nil {
		return nil, fmt.Errorf("place order %s %s: %w", side, symbol, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("place order %s %s: empty response", side, symbol)
	}
	if data[0].SCode != "" && data[0].SCode != "0" {
		return nil, &APIError{Code: data[0].SCode, Message: data[0].SMsg}
	}

	c.logger.Info().
		Str("symbol", symbol).
		Str("side", side).
		Float64("size", size).
		Str("order_id", data[0].OrdID).
		Msg("order placed")

	return &market.OrderResult{OrderID: data[0].OrdID, FilledPrice: price}, nil
}

// request performs one signed or public call and decodes the data field
func (c *Client) request(ctx context.Context, method, path string, body []byte, signed bool, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.demoMode {
		req.Header.Set("x-simulated-trading", "1")
	}

	if signed {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", Sign(c.creds.SecretKey, timestamp, method, path, string(body)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.creds.Passphrase)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(payload))
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code != "0" {
		return &APIError{Code: env.Code, Message: env.Msg}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}

	return nil
}

// Sign produces the OK-ACCESS-SIGN header value: a base64 HMAC-SHA256
// over timestamp + method + path + body.
func Sign(secret, timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
