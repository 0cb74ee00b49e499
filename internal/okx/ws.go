package okx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"okx-trading-bot/internal/market"
)

const (
	wsPingInterval      = 20 * time.Second
	wsReadDeadline      = 30 * time.Second
	wsReconnectDelay    = 5 * time.Second
	wsMaxReconnectDelay = time.Minute
)

// Tick is one live price update from the public tickers channel
type Tick struct {
	Symbol string
	Ticker market.Ticker
	Time   time.Time
}

type wsSubscribeOp struct {
	Op   string      `json:"op"`
	Args []wsChannel `json:"args"`
}

type wsChannel struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsMessage struct {
	Event string       `json:"event"`
	Arg   wsChannel    `json:"arg"`
	Data  []tickerData `json:"data"`
}

// Feed streams ticker updates from the OKX public websocket, with
// automatic reconnect and resubscribe.
type Feed struct {
	url     string
	symbols []string
	logger  zerolog.Logger
	ticks   chan Tick
}

// NewFeed creates a ticker feed for the given symbols
func NewFeed(url string, symbols []string, logger zerolog.Logger) *Feed {
	return &Feed{
		url:     url,
		symbols: symbols,
		logger:  logger.With().Str("component", "okx_ws").Logger(),
		ticks:   make(chan Tick, 256),
	}
}

// Ticks returns the stream of live ticker updates. The channel closes
// when Run returns.
func (f *Feed) Ticks() <-chan Tick {
	return f.ticks
}

// Run connects and pumps ticks until the context is cancelled.
// Connection failures back off and reconnect.
func (f *Feed) Run(ctx context.Context) {
	defer close(f.ticks)

	delay := wsReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.connectAndStream(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn().Err(err).Dur("retry_in", delay).Msg("websocket disconnected")

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > wsMaxReconnectDelay {
				delay = wsMaxReconnectDelay
			}
			continue
		}

		delay = wsReconnectDelay
	}
}

func (f *Feed) connectAndStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]wsChannel, 0, len(f.symbols))
	for _, s := range f.symbols {
		args = append(args, wsChannel{Channel: "tickers", InstID: s})
	}
	if err := conn.WriteJSON(wsSubscribeOp{Op: "subscribe", Args: args}); err != nil {
		return err
	}

	f.logger.Info().Strs("symbols", f.symbols).Msg("subscribed to ticker feed")

	// The server drops idle connections; ping on a timer
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if string(payload) == "pong" {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			f.logger.Debug().Err(err).Msg("unparseable websocket message")
			continue
		}

		if msg.Event != "" || len(msg.Data) == 0 {
			continue
		}

		for _, d := range msg.Data {
			last := parseFloat(d.Last)
			open := parseFloat(d.Open24h)
			change := 0.0
			if open > 0 {
				change = (last - open) / open * 100
			}

			tick := Tick{
				Symbol: d.InstID,
				Time:   time.Now(),
				Ticker: market.Ticker{
					Symbol:    d.InstID,
					Last:      last,
					Bid:       parseFloat(d.BidPx),
					Ask:       parseFloat(d.AskPx),
					Volume24h: parseFloat(d.Vol24h),
					Change24h: change,
				},
			}

			select {
			case f.ticks <- tick:
			default:
				// Drop the tick rather than block the read loop
			}
		}
	}
}
