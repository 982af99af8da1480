// Package main provides the order matching engine's HTTP gateway.
//
// Architecture Overview:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Client    │────▶│  Gateway    │────▶│   Risk      │
//	│  (HTTP/WS)  │     │  (HTTP API) │     │   Checker   │
//	└─────────────┘     └─────────────┘     └──────┬──────┘
//	                                               │
//	                                               ▼
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Market     │◀────│  Matching   │◀────│  Sequencer  │
//	│  Data Pub   │     │   Engine    │     │ (Ring Buf)  │
//	└─────────────┘     └──────┬──────┘     └─────────────┘
//	                           │
//	                           ▼
//	┌─────────────┐     ┌─────────────┐
//	│  Clearing   │◀────│  Event Log  │
//	│   House     │     │             │
//	└─────────────┘     └─────────────┘
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lhoste/lobcore/internal/config"
	"github.com/lhoste/lobcore/internal/disruptor"
	"github.com/lhoste/lobcore/internal/events"
	"github.com/lhoste/lobcore/internal/marketdata"
	"github.com/lhoste/lobcore/internal/matching"
	"github.com/lhoste/lobcore/internal/obsmetrics"
	"github.com/lhoste/lobcore/internal/orders"
	"github.com/lhoste/lobcore/internal/ratelimit"
	"github.com/lhoste/lobcore/internal/risk"
	"github.com/lhoste/lobcore/internal/settlement"
)

// Server is the HTTP gateway in front of the matching core.
//
// Architecture: LMAX Disruptor Pattern (see internal/disruptor)
//   - HTTP handlers (multi-threaded) submit to the ring buffer via CAS
//   - A single event processor consumes from the ring buffer and drives
//     the matching engine
//   - This keeps the core single-threaded and deterministic while the
//     gateway itself stays concurrent
type Server struct {
	cfg config.ServerConfig
	log zerolog.Logger

	engine        *matching.Engine
	riskChecker   *risk.Checker
	eventLog      *events.EventLog
	publisher     *marketdata.Publisher
	wsHub         *marketdata.WSHub
	clearingHouse *settlement.ClearingHouse
	limiter       *ratelimit.TokenBucket
	metrics       *obsmetrics.Collector

	ringBuffer     *disruptor.RingBuffer
	sequencer      *disruptor.Sequencer
	eventProcessor *disruptor.EventProcessor

	httpServer    *http.Server
	metricsServer *http.Server
}

// NewServer wires every ambient collaborator around the matching core.
func NewServer(cfg config.ServerConfig, logger zerolog.Logger) (*Server, error) {
	eventLog, err := events.NewEventLog(events.EventLogConfig{
		Path:     cfg.EventLogPath,
		SyncMode: cfg.SyncMode,
	})
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}

	engine := matching.NewEngine()
	for _, symbol := range cfg.Symbols {
		engine.AddSymbol(symbol)
	}

	riskChecker := risk.NewChecker(risk.DefaultConfig())
	publisher := marketdata.NewPublisher(1000)
	wsHub := marketdata.NewWSHub()
	publisher.AttachWebSocketHub(wsHub)
	clearingHouse := settlement.NewClearingHouse()

	for _, acct := range []string{"TRADER1", "TRADER2", "MM1", "MM2"} {
		clearingHouse.GetOrCreateAccount(acct, 10000000) // $100,000 each
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitBurst, cfg.RateLimitPerSec)

	bufSize := uint64(1) << uint(cfg.RingBufferLog)
	ringBuffer := disruptor.NewRingBuffer(disruptor.Config{BufferSize: bufSize})
	sequencer := disruptor.NewSequencer(ringBuffer)
	eventProcessor := disruptor.NewEventProcessor(ringBuffer, engine, eventLog, logger)

	s := &Server{
		cfg:            cfg,
		log:            logger,
		engine:         engine,
		riskChecker:    riskChecker,
		eventLog:       eventLog,
		publisher:      publisher,
		wsHub:          wsHub,
		clearingHouse:  clearingHouse,
		limiter:        limiter,
		metrics:        obsmetrics.GetCollector(),
		ringBuffer:     ringBuffer,
		sequencer:      sequencer,
		eventProcessor: eventProcessor,
	}

	engine.OnTrade = s.onTrade

	mux := http.NewServeMux()
	mux.HandleFunc("/order", s.handleOrder)
	mux.HandleFunc("/cancel", s.handleCancel)
	mux.HandleFunc("/book", s.handleBook)
	mux.HandleFunc("/account", s.handleAccount)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.wsHub.ServeWS)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", obsmetrics.Handler())
	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	return s, nil
}

// onTrade fans a single fill out to settlement, risk and market data. It
// is invoked synchronously from the engine's single-threaded match loop,
// so none of these calls may block on the network.
func (s *Server) onTrade(fill orders.Fill) {
	s.clearingHouse.RecordTrade(fill)

	s.riskChecker.UpdatePosition(fill.TakerAccountID, fill.Symbol, fill.TakerSide, fill.Quantity)
	s.riskChecker.UpdatePosition(fill.MakerAccountID, fill.Symbol, fill.TakerSide.Opposite(), fill.Quantity)
	s.riskChecker.SetReferencePrice(fill.Symbol, fill.Price)

	s.metrics.RecordFill(fill.Symbol, fill.Quantity)

	trade := marketdata.TradeReport{
		TradeID:       fill.TradeID,
		Symbol:        fill.Symbol,
		Price:         fill.Price,
		Quantity:      fill.Quantity,
		AggressorSide: fill.TakerSide,
		Timestamp:     fill.Timestamp,
	}
	s.publisher.PublishTrade(trade)

	s.publishL1(fill.Symbol)
}

func (s *Server) publishL1(symbol string) {
	book := s.engine.Book(symbol)
	if book == nil {
		return
	}

	l1 := marketdata.L1Quote{Symbol: symbol, Timestamp: orders.Now()}
	if price, ok := book.BestBid(); ok {
		l1.BidPrice = price
		l1.BidSize = book.VolumeAt(price, orders.SideBuy)
	}
	if price, ok := book.BestAsk(); ok {
		l1.AskPrice = price
		l1.AskSize = book.VolumeAt(price, orders.SideSell)
	}
	s.publisher.PublishL1(l1)

	if bidPrice, okBid := book.BestBid(); okBid {
		if askPrice, okAsk := book.BestAsk(); okAsk {
			s.metrics.SetSpread(symbol, askPrice-bidPrice)
		}
	}
}

// Run starts the event processor and both HTTP servers, blocking until
// ctx is cancelled, then drains the ring buffer and flushes the event
// log before returning.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Strs("symbols", s.engine.Symbols()).Str("addr", s.httpServer.Addr).Msg("starting gateway")

	s.eventProcessor.Start()
	go s.wsHub.Run()
	go s.runSettlementLoop(ctx)

	errCh := make(chan error, 2)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		s.log.Info().Str("addr", s.metricsServer.Addr).Msg("serving metrics")
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return s.shutdown()
}

// runSettlementLoop periodically nets pending trades and settles them
// via DVP, until ctx is cancelled. The clearing house itself never logs
// or emits metrics; both stay here at the gateway boundary.
func (s *Server) runSettlementLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SettlementInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settled, err := s.clearingHouse.RunSettlementCycle()
			if err != nil {
				s.log.Warn().Err(err).Int("settled", len(settled)).Msg("settlement cycle completed with errors")
				continue
			}
			if len(settled) > 0 {
				s.log.Info().Int("settled", len(settled)).Msg("settlement cycle complete")
			}
		}
	}
}

// shutdown drains the ring buffer, flushes the event log, and closes
// every long-lived resource, in an order that avoids data loss:
//  1. stop accepting new HTTP requests
//  2. drain the ring buffer (process all pending orders)
//  3. flush the event log to disk
//  4. close the market data publisher
func (s *Server) shutdown() error {
	s.log.Info().Msg("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	_ = s.metricsServer.Shutdown(shutdownCtx)

	s.eventProcessor.Shutdown()

	if err := s.eventLog.Close(); err != nil {
		return err
	}

	s.publisher.Close()
	return nil
}

// OrderRequest is a new order submission.
type OrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`  // "buy" or "sell"
	Price     string `json:"price"` // dollar amount, e.g. "150.25"
	Quantity  int64  `json:"quantity"`
	AccountID string `json:"account_id"`
	UID       string `json:"uid,omitempty"` // caller-supplied; generated if empty
}

// OrderResponse reports the outcome of a submission.
type OrderResponse struct {
	Success      bool       `json:"success"`
	UID          string     `json:"uid,omitempty"`
	Status       string     `json:"status,omitempty"`
	FilledQty    int64      `json:"filled_qty,omitempty"`
	RemainingQty int64      `json:"remaining_qty,omitempty"`
	Fills        []FillInfo `json:"fills,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// FillInfo is a single execution in an OrderResponse.
type FillInfo struct {
	TradeID  uint64 `json:"trade_id"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var side orders.Side
	switch req.Side {
	case "buy", "BUY":
		side = orders.SideBuy
	case "sell", "SELL":
		side = orders.SideSell
	default:
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "invalid side: must be 'buy' or 'sell'"})
		return
	}

	limitResult, err := s.limiter.Allow(r.Context(), req.AccountID)
	if err != nil {
		s.log.Warn().Err(err).Msg("rate limiter unreachable, failing open")
	} else if !limitResult.Allowed {
		s.metrics.RecordRateLimitHit(req.AccountID)
		w.Header().Set("Retry-After", strconv.Itoa(int(limitResult.RetryAfter.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, OrderResponse{Error: "rate limit exceeded"})
		return
	}

	// Price is a fixed-point fraction of a dollar, not a float: "150.25"
	// -> 15025. Financial systems avoid IEEE-754 rounding error here.
	priceFloat, err := strconv.ParseFloat(req.Price, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("invalid price: %v", err)})
		return
	}
	price := orders.ParsePrice(priceFloat)

	uid := req.UID
	if uid == "" {
		uid = uuid.NewString()
	}

	order := &orders.Order{
		UID:       uid,
		Symbol:    req.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  req.Quantity,
		Shares:    req.Quantity,
		AccountID: req.AccountID,
		Timestamp: orders.Now(),
	}

	riskResult := s.riskChecker.Check(order)
	if !riskResult.Passed {
		s.metrics.RecordRejected(req.Symbol, riskResult.Reason)
		writeJSON(w, http.StatusBadRequest, OrderResponse{RejectReason: riskResult.Reason})
		return
	}

	timer := obsmetrics.NewTimer()

	responseCh := make(chan *disruptor.OrderResponse, 1)
	request := &disruptor.OrderRequest{Type: disruptor.RequestTypeNewOrder, Order: order}

	seq, err := s.sequencer.Next()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, OrderResponse{Error: "server busy, please retry"})
		return
	}
	s.sequencer.Publish(seq, request, responseCh)

	var response *disruptor.OrderResponse
	select {
	case response = <-responseCh:
	case <-time.After(5 * time.Second):
		writeJSON(w, http.StatusGatewayTimeout, OrderResponse{Error: "processing timeout"})
		return
	}

	s.metrics.RecordMatchLatency(req.Symbol, timer.Elapsed())

	if !response.Success {
		s.metrics.RecordRejected(req.Symbol, response.Result.RejectReason)
		writeJSON(w, http.StatusBadRequest, OrderResponse{
			UID:          uid,
			RejectReason: response.Result.RejectReason,
		})
		return
	}

	s.metrics.RecordOrder(req.Symbol, side.String())

	result := response.Result
	fills := make([]FillInfo, len(result.Fills))
	for i, fill := range result.Fills {
		fills[i] = FillInfo{TradeID: fill.TradeID, Price: orders.FormatPrice(fill.Price), Quantity: fill.Quantity}
	}

	s.setBookDepthGauges(req.Symbol)

	writeJSON(w, http.StatusOK, OrderResponse{
		Success:      true,
		UID:          uid,
		Status:       result.Order.Status.String(),
		FilledQty:    result.Order.FilledQty(),
		RemainingQty: result.Order.RemainingQty(),
		Fills:        fills,
	})
}

// handleCancel reduces a resting order. Without a "shares" query
// parameter it fully retires the order, reducing by an amount that always
// exceeds the order's remaining shares, since the gateway does not track
// per-uid resting quantity itself; with "shares" it reduces by that many.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	uid := r.URL.Query().Get("uid")
	if symbol == "" || uid == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol and uid required"})
		return
	}

	delta := int64(math.MaxInt64)
	if sharesStr := r.URL.Query().Get("shares"); sharesStr != "" {
		parsed, err := strconv.ParseInt(sharesStr, 10, 64)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid shares"})
			return
		}
		delta = parsed
	}

	responseCh := make(chan *disruptor.OrderResponse, 1)
	request := &disruptor.OrderRequest{Type: disruptor.RequestTypeReduceOrder, Symbol: symbol, UID: uid, Delta: delta}

	seq, err := s.sequencer.Next()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server busy, please retry"})
		return
	}
	s.sequencer.Publish(seq, request, responseCh)

	var response *disruptor.OrderResponse
	select {
	case response = <-responseCh:
	case <-time.After(5 * time.Second):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "processing timeout"})
		return
	}

	if !response.Success {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": response.Error.Error()})
		return
	}

	s.setBookDepthGauges(symbol)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"symbol":  symbol,
		"uid":     uid,
	})
}

func (s *Server) setBookDepthGauges(symbol string) {
	book := s.engine.Book(symbol)
	if book == nil {
		return
	}
	s.metrics.SetBookDepth(symbol, "bid", len(book.BidDepth(0)))
	s.metrics.SetBookDepth(symbol, "ask", len(book.AskDepth(0)))
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol required"})
		return
	}

	book := s.engine.Book(symbol)
	if book == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "symbol not found"})
		return
	}

	levels := 10
	if l := r.URL.Query().Get("levels"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			levels = parsed
		}
	}

	bids := book.BidDepth(levels)
	asks := book.AskDepth(levels)

	bidData := make([]map[string]interface{}, len(bids))
	for i, level := range bids {
		bidData[i] = map[string]interface{}{
			"price":    orders.FormatPrice(level.Price),
			"quantity": level.TotalVolume,
			"orders":   level.Size,
		}
	}

	askData := make([]map[string]interface{}, len(asks))
	for i, level := range asks {
		askData[i] = map[string]interface{}{
			"price":    orders.FormatPrice(level.Price),
			"quantity": level.TotalVolume,
			"orders":   level.Size,
		}
	}

	resp := map[string]interface{}{
		"symbol": symbol,
		"bids":   bidData,
		"asks":   askData,
	}

	bidPrice, hasBid := book.BestBid()
	askPrice, hasAsk := book.BestAsk()
	if hasBid && hasAsk {
		resp["spread"] = orders.FormatPrice(askPrice - bidPrice)
		resp["mid"] = orders.FormatPrice((bidPrice + askPrice) / 2)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("id")
	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id required"})
		return
	}

	account := s.clearingHouse.GetAccount(accountID)
	if account == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       account.ID,
		"cash":     orders.FormatPrice(account.Cash),
		"holdings": account.Holdings,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.clearingHouse.GetSettlementStats()

	var ordersInBook int
	for _, symbol := range s.engine.Symbols() {
		book := s.engine.Book(symbol)
		if book == nil {
			continue
		}
		for _, level := range book.BidDepth(0) {
			ordersInBook += level.Size
		}
		for _, level := range book.AskDepth(0) {
			ordersInBook += level.Size
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders_in_book":   ordersInBook,
		"event_log_seq":    s.eventLog.GetLastSequence(),
		"settlement_stats": stats,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "lobcored",
		Short: "Order matching engine gateway",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and matching engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
				With().Timestamp().Logger()
			log.Logger = logger

			server, err := NewServer(cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info().Msg("received shutdown signal")
				cancel()
			}()

			return server.Run(ctx)
		},
	}
	config.BindFlags(serveCmd.Flags())
	root.AddCommand(serveCmd)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("lobcored exited with error")
	}
}
