package okx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSignKnownVector(t *testing.T) {
	got := Sign("test-secret", "2024-01-02T03:04:05.000Z", "GET", "/api/v5/account/balance?ccy=USDT", "")
	want := "PUXCV4Lw5LBejd5M1m/Bz4vMtx0RTP8cA8h8RRgIDfk="
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestGetCandlesReversesToOldestFirst(t *testing.T) {
	// OKX serves newest first
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/market/candles" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT" {
			t.Errorf("unexpected instId %q", got)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700000120000","103","104","102","103.5","12"],
			["1700000060000","101","103","100","103","10"],
			["1700000000000","100","102","99","101","15"]
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, false, zerolog.Nop())
	candles, err := client.GetCandles(context.Background(), "BTC-USDT", "15m", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			t.Errorf("candles not oldest first at index %d", i)
		}
	}
	if candles[0].Close != 101 || candles[2].Close != 103.5 {
		t.Errorf("candle values misplaced: first close %.2f, last close %.2f",
			candles[0].Close, candles[2].Close)
	}
	if candles[0].Volume != 15 {
		t.Errorf("expected first candle volume 15, got %.2f", candles[0].Volume)
	}
}

func TestNonZeroCodeBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50011","msg":"rate limit reached","data":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, false, zerolog.Nop())
	_, err := client.GetCandles(context.Background(), "BTC-USDT", "15m", 10)
	if err == nil {
		t.Fatal("expected an error for a non-zero code")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "50011" {
		t.Errorf("expected code 50011, got %q", apiErr.Code)
	}
}

func TestSignedRequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"OK-ACCESS-KEY", "OK-ACCESS-SIGN", "OK-ACCESS-TIMESTAMP", "OK-ACCESS-PASSPHRASE"} {
			if r.Header.Get(h) == "" {
				t.Errorf("missing header %s", h)
			}
		}
		if r.Header.Get("x-simulated-trading") != "1" {
			t.Error("expected demo mode header")
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[{"details":[{"ccy":"USDT","availBal":"950.5","eq":"1000"}]}]}`))
	}))
	defer server.Close()

	creds := Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "pass"}
	client := NewClient(server.URL, creds, true, zerolog.Nop())

	balance, err := client.GetBalance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Available != 950.5 || balance.Total != 1000 {
		t.Errorf("unexpected balance %+v", balance)
	}
}

func TestPlaceOrderRejectedSCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient balance"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{APIKey: "k", SecretKey: "s", Passphrase: "p"}, true, zerolog.Nop())

	_, err := client.PlaceOrder(context.Background(), "BTC-USDT", "buy", "market", 0.1, 0)
	if err == nil {
		t.Fatal("expected an error for a rejected order")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "51008" {
		t.Errorf("expected sCode 51008, got %q", apiErr.Code)
	}
}
