package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL es el endpoint de streams crudos de Binance.
	DefaultBaseURL = "wss://stream.binance.com:9443/ws"

	defaultReconnectClosed = 2 * time.Second
	defaultReconnectError  = 5 * time.Second
	defaultReadTimeout     = 60 * time.Second
	pingInterval           = 20 * time.Second
	writeTimeout           = 10 * time.Second
)

// aggTrade es el mensaje del stream <symbol>@aggTrade. Solo interesa el precio.
type aggTrade struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// Feed mantiene un websocket de aggTrade por asset y vuelca cada precio en el Tracker.
type Feed struct {
	baseURL         string
	assets          []string
	tracker         *Tracker
	dialer          *websocket.Dialer
	reconnectClosed time.Duration
	reconnectError  time.Duration
	readTimeout     time.Duration
}

// FeedOption configura un Feed.
type FeedOption func(*Feed)

// WithReconnectDelays ajusta las esperas antes de reconectar tras un cierre
// limpio o tras un error.
func WithReconnectDelays(closed, failed time.Duration) FeedOption {
	return func(f *Feed) {
		f.reconnectClosed = closed
		f.reconnectError = failed
	}
}

// WithReadTimeout ajusta el deadline de lectura (se renueva con cada mensaje o pong).
func WithReadTimeout(d time.Duration) FeedOption {
	return func(f *Feed) { f.readTimeout = d }
}

// NewFeed crea un feed para los assets dados (BTC, ETH, SOL...). baseURL vacío
// usa DefaultBaseURL.
func NewFeed(baseURL string, assets []string, tracker *Tracker, opts ...FeedOption) *Feed {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &Feed{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		assets:          assets,
		tracker:         tracker,
		dialer:          websocket.DefaultDialer,
		reconnectClosed: defaultReconnectClosed,
		reconnectError:  defaultReconnectError,
		readTimeout:     defaultReadTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// StreamURL devuelve la URL del stream aggTrade del asset contra USDT.
func (f *Feed) StreamURL(asset string) string {
	return fmt.Sprintf("%s/%susdt@aggTrade", f.baseURL, strings.ToLower(asset))
}

// Run mantiene un stream por asset hasta que ctx se cancele. Nunca devuelve
// error por fallos de conexión: reconecta indefinidamente.
func (f *Feed) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, asset := range f.assets {
		g.Go(func() error {
			f.streamAsset(ctx, asset)
			return nil
		})
	}
	return g.Wait()
}

func (f *Feed) streamAsset(ctx context.Context, asset string) {
	url := f.StreamURL(asset)
	for {
		err := f.stream(ctx, asset, url)
		if ctx.Err() != nil {
			slog.Debug("feed: stream stopped", "asset", asset)
			return
		}

		wait := f.reconnectError
		var closeErr *websocket.CloseError
		if err == nil || errors.As(err, &closeErr) {
			wait = f.reconnectClosed
			slog.Warn("feed: stream closed, reconnecting", "asset", asset, "in", wait)
		} else {
			slog.Error("feed: stream error, reconnecting", "asset", asset, "in", wait, "err", err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// stream conecta y lee hasta que la conexión cae o ctx se cancela.
func (f *Feed) stream(ctx context.Context, asset, url string) error {
	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	slog.Info("feed: stream connected", "asset", asset, "url", url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// desbloquea ReadMessage
				conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.readTimeout))

		price, err := parseAggTrade(raw)
		if err != nil {
			slog.Debug("feed: bad message", "asset", asset, "err", err)
			continue
		}
		f.tracker.Record(asset, price)
	}
}

// parseAggTrade extrae el precio ("p") de un mensaje aggTrade.
func parseAggTrade(raw []byte) (float64, error) {
	var msg aggTrade
	if err := json.Unmarshal(raw, &msg); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", msg.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %v", price)
	}
	return price, nil
}
