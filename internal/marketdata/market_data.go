// Package marketdata is the single entry point for live market state: it
// subscribes per symbol to Bybit's linear-futures orderbook, ticker and
// 1-minute kline streams, and maintains the latest snapshot of each keyed
// by symbol, over a dialer/reconnect-monitor/read-loop architecture
// targeting the Bybit v5 public WebSocket.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	mainnetWSURL = "wss://stream.bybit.com/v5/public/linear"
	testnetWSURL = "wss://stream-testnet.bybit.com/v5/public/linear"
)

// Candle is the latest (possibly unconfirmed) 1-minute kline for a symbol.
type Candle struct {
	Symbol    string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
	Confirmed bool
}

// symbolState is the cache entry for one symbol.
type symbolState struct {
	mu          sync.RWMutex
	price       decimal.Decimal
	priceSet    bool
	book        types.OrderBookSnapshot
	bookSet     bool
	candle      Candle
	candleSet   bool
	fundingRate decimal.Decimal
	fundingSet  bool
	lastUpdate  time.Time
}

// Config configures the market data service.
type Config struct {
	Testnet bool
	Symbols []string
}

// Service maintains live price/orderbook/kline caches fed by a Bybit v5
// public WebSocket connection.
type Service struct {
	logger *zap.Logger
	cfg    Config
	wsURL  string

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool

	symMu sync.RWMutex
	sym   map[string]*symbolState

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates a market data service for the given symbols.
func New(logger *zap.Logger, cfg Config) *Service {
	wsURL := mainnetWSURL
	if cfg.Testnet {
		wsURL = testnetWSURL
	}
	s := &Service{
		logger: logger.Named("marketdata"),
		cfg:    cfg,
		wsURL:  wsURL,
		sym:    make(map[string]*symbolState),
	}
	for _, symbol := range cfg.Symbols {
		s.sym[symbol] = &symbolState{}
	}
	return s
}

// Start connects, subscribes to every configured symbol's three streams,
// and begins the read loop and the reconnect monitor.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	if err := s.connect(); err != nil {
		return fmt.Errorf("marketdata: initial connect: %w", err)
	}
	if err := s.subscribeAll(); err != nil {
		s.logger.Error("initial subscribe failed", zap.Error(err))
	}

	go s.readLoop()
	go s.reconnectMonitor()

	s.logger.Info("market data service started", zap.Int("symbols", len(s.cfg.Symbols)))
	return nil
}

// Stop tears down the connection and stops background goroutines.
func (s *Service) Stop() error {
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connected = false
	s.connMu.Unlock()
	s.logger.Info("market data service stopped")
	return nil
}

func (s *Service) connect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		s.connected = false
		return err
	}
	s.conn = conn
	s.connected = true
	s.logger.Debug("connected to bybit public ws", zap.String("url", s.wsURL))
	return nil
}

// Connected reports whether the WebSocket is currently connected.
func (s *Service) Connected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected
}

func (s *Service) subscribeAll() error {
	args := make([]string, 0, len(s.cfg.Symbols)*3)
	for _, symbol := range s.cfg.Symbols {
		args = append(args,
			fmt.Sprintf("orderbook.50.%s", symbol),
			fmt.Sprintf("tickers.%s", symbol),
			fmt.Sprintf("kline.1.%s", symbol),
		)
	}

	msg := map[string]any{"op": "subscribe", "args": args}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("marketdata: not connected")
	}
	return conn.WriteJSON(msg)
}

func (s *Service) readLoop() {
	for s.running {
		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.running {
				s.logger.Warn("websocket read error, marking disconnected", zap.Error(err))
				s.connMu.Lock()
				s.connected = false
				s.connMu.Unlock()
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}

		s.handleMessage(message)
	}
}

type wireMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	TS    int64           `json:"ts"`
}

func (s *Service) handleMessage(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic == "" {
		return
	}

	switch {
	case strings.HasPrefix(msg.Topic, "orderbook."):
		s.handleOrderBook(msg)
	case strings.HasPrefix(msg.Topic, "tickers."):
		s.handleTicker(msg)
	case strings.HasPrefix(msg.Topic, "kline."):
		s.handleKline(msg)
	}
}

type wireBookLevel [2]string

type wireOrderBook struct {
	Symbol string          `json:"s"`
	Bids   []wireBookLevel `json:"b"`
	Asks   []wireBookLevel `json:"a"`
}

func (s *Service) handleOrderBook(msg wireMessage) {
	var book wireOrderBook
	if err := json.Unmarshal(msg.Data, &book); err != nil || book.Symbol == "" {
		return
	}

	state := s.stateFor(book.Symbol)
	bids := toLevels(book.Bids)
	asks := toLevels(book.Asks)

	state.mu.Lock()
	// Every message simply replaces the bids/asks levels it carries;
	// Bybit's delta-vs-snapshot merge semantics are left as wire-protocol
	// detail rather than reconstructed here.
	if len(bids) > 0 {
		state.book.Bids = bids
	}
	if len(asks) > 0 {
		state.book.Asks = asks
	}
	state.book.Symbol = book.Symbol
	state.book.UpdatedAt = time.Now()
	state.bookSet = true

	if bestBid, ok := state.book.BestBid(); ok {
		if bestAsk, ok := state.book.BestAsk(); ok {
			state.price = bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2))
			state.priceSet = true
		}
	}
	state.lastUpdate = time.Now()
	state.mu.Unlock()
}

type wireTicker struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	FundingRate string `json:"fundingRate"`
}

func (s *Service) handleTicker(msg wireMessage) {
	var t wireTicker
	if err := json.Unmarshal(msg.Data, &t); err != nil || t.Symbol == "" {
		return
	}

	state := s.stateFor(t.Symbol)
	state.mu.Lock()
	defer state.mu.Unlock()

	if t.FundingRate != "" {
		if fr, err := decimal.NewFromString(t.FundingRate); err == nil {
			state.fundingRate = fr
			state.fundingSet = true
		}
	}
	// Ticker's last price only acts as a fallback when the orderbook mid
	// is unavailable; it never overwrites a fresher mid-price.
	if !state.priceSet && t.LastPrice != "" {
		if p, err := decimal.NewFromString(t.LastPrice); err == nil {
			state.price = p
			state.priceSet = true
		}
	}
	state.lastUpdate = time.Now()
}

type wireKline struct {
	Start     int64  `json:"start"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	Confirm   bool   `json:"confirm"`
}

func (s *Service) handleKline(msg wireMessage) {
	var klines []wireKline
	if err := json.Unmarshal(msg.Data, &klines); err != nil || len(klines) == 0 {
		return
	}
	k := klines[len(klines)-1]

	symbol := strings.TrimPrefix(msg.Topic, "kline.1.")
	state := s.stateFor(symbol)

	open, _ := decimal.NewFromString(k.Open)
	high, _ := decimal.NewFromString(k.High)
	low, _ := decimal.NewFromString(k.Low)
	closePrice, _ := decimal.NewFromString(k.Close)
	volume, _ := decimal.NewFromString(k.Volume)

	state.mu.Lock()
	state.candle = Candle{
		Symbol:    symbol,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Timestamp: time.UnixMilli(k.Start),
		Confirmed: k.Confirm,
	}
	state.candleSet = true
	state.lastUpdate = time.Now()
	state.mu.Unlock()
}

func (s *Service) reconnectMonitor() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.Connected() || !s.running {
				continue
			}
			s.logger.Info("attempting reconnect to bybit public ws")
			if err := s.connect(); err != nil {
				s.logger.Error("reconnect failed", zap.Error(err))
				continue
			}
			if err := s.subscribeAll(); err != nil {
				s.logger.Error("resubscribe failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) stateFor(symbol string) *symbolState {
	s.symMu.Lock()
	defer s.symMu.Unlock()
	st, ok := s.sym[symbol]
	if !ok {
		st = &symbolState{}
		s.sym[symbol] = st
	}
	return st
}

// GetPrice returns the latest mid-price (or ticker-fallback price) for a symbol.
func (s *Service) GetPrice(symbol string) (decimal.Decimal, bool) {
	st := s.stateFor(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.price, st.priceSet
}

// GetOrderBook returns the latest order book snapshot for a symbol.
func (s *Service) GetOrderBook(symbol string) (types.OrderBookSnapshot, bool) {
	st := s.stateFor(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.book, st.bookSet
}

// GetCandle returns the latest 1-minute candle for a symbol.
func (s *Service) GetCandle(symbol string) (Candle, bool) {
	st := s.stateFor(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.candle, st.candleSet
}

// GetFundingRate returns the latest funding rate for a symbol.
func (s *Service) GetFundingRate(symbol string) (decimal.Decimal, bool) {
	st := s.stateFor(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.fundingRate, st.fundingSet
}

func toLevels(raw []wireBookLevel) []types.OrderBookLevel {
	levels := make([]types.OrderBookLevel, 0, len(raw))
	for _, l := range raw {
		price, err1 := decimal.NewFromString(l[0])
		size, err2 := decimal.NewFromString(l[1])
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, types.OrderBookLevel{Price: price, Size: size})
	}
	return levels
}
