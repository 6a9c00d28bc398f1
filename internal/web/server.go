// Package web exposes the consumer-facing read API over HTTP: protocol
// stats, per-owner position views, the current price with an SSE stream,
// and the transition endpoints. It is a thin layer over the aggregator
// and holds no state of its own.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/zenlend/zenlend/internal/domain"
	"github.com/zenlend/zenlend/internal/services/analytics"
)

const sseHeartbeatInterval = 30 * time.Second

// Protocol is the aggregator surface the server reads and mutates through.
type Protocol interface {
	Stats() domain.ProtocolStats
	PositionView(owner string) (*domain.RiskSnapshot, error)
	CurrentPrice() (domain.PricePoint, bool)
	Analytics() analytics.Summary
	Deposit(ctx context.Context, owner string, amount decimal.Decimal, secret string) error
	Mint(ctx context.Context, owner string, amount decimal.Decimal) error
	Repay(ctx context.Context, owner string, amount decimal.Decimal) (decimal.Decimal, error)
}

// PriceSubscriber hands out price update channels for the SSE stream.
type PriceSubscriber interface {
	Subscribe() chan domain.PricePoint
	Unsubscribe(ch chan domain.PricePoint)
}

// Server exposes the HTTP endpoints.
type Server struct {
	Addr     string
	Protocol Protocol
	Prices   PriceSubscriber
	Logger   *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, protocol Protocol, prices PriceSubscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Protocol: protocol, Prices: prices, Logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/price", s.handlePrice)
	mux.HandleFunc("/price/stream", s.handlePriceStream)
	mux.HandleFunc("/analytics", s.handleAnalytics)
	mux.HandleFunc("/position/", s.handlePosition)
	mux.HandleFunc("/deposit", s.handleDeposit)
	mux.HandleFunc("/mint", s.handleMint)
	mux.HandleFunc("/repay", s.handleRepay)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates
// via ACME, plus an HTTP server on port 80 for HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpServer := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Warn("ACME challenge server stopped", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              ":443",
		Handler:           s.Handler(),
		TLSConfig:         &tls.Config{GetCertificate: manager.GetCertificate},
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// JSON view types use strings for money fields to avoid float precision
// issues in consumers.

type statsView struct {
	TotalCollateral      string `json:"total_collateral"`
	TotalCollateralValue string `json:"total_collateral_value"`
	TotalDebt            string `json:"total_debt"`
	ActivePositions      int    `json:"active_positions"`
	GlobalRatioPct       string `json:"global_ratio_pct,omitempty"`
	GlobalRatioUnbounded bool   `json:"global_ratio_unbounded,omitempty"`
	Price                string `json:"price,omitempty"`
	PriceChange24hPct    string `json:"price_change_24h_pct,omitempty"`
	PriceStale           bool   `json:"price_stale,omitempty"`
}

type positionView struct {
	CollateralValue    string `json:"collateral_value"`
	CollateralRatioPct string `json:"collateral_ratio_pct,omitempty"`
	RatioUnbounded     bool   `json:"ratio_unbounded,omitempty"`
	HealthFactor       string `json:"health_factor,omitempty"`
	LiquidationPrice   string `json:"liquidation_price,omitempty"`
	Tier               string `json:"tier"`
	PriceUsed          string `json:"price_used,omitempty"`
}

type priceView struct {
	Asset        string    `json:"asset"`
	Price        string    `json:"price"`
	Change24hPct string    `json:"change_24h_pct"`
	ObservedAt   time.Time `json:"observed_at"`
	Stale        bool      `json:"stale"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.Protocol.Stats()

	view := statsView{
		TotalCollateral:      stats.TotalCollateral.String(),
		TotalCollateralValue: stats.TotalCollateralValue.String(),
		TotalDebt:            stats.TotalDebt.String(),
		ActivePositions:      stats.ActivePositionCount,
		GlobalRatioUnbounded: stats.GlobalRatioUnbounded,
	}
	if !stats.GlobalRatioUnbounded && stats.HasPrice {
		view.GlobalRatioPct = stats.GlobalRatioPct.StringFixed(2)
	}
	if stats.HasPrice {
		view.Price = stats.Price.Price.String()
		view.PriceChange24hPct = stats.Price.Change24hPct.String()
		view.PriceStale = stats.Price.Stale
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	point, ok := s.Protocol.CurrentPrice()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no price observed yet")
		return
	}
	writeJSON(w, http.StatusOK, toPriceView(point))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Protocol.Analytics())
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimPrefix(r.URL.Path, "/position/")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	snap, err := s.Protocol.PositionView(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no open position")
		return
	}

	view := positionView{
		CollateralValue: snap.CollateralValue.String(),
		RatioUnbounded:  snap.RatioUnbounded,
		Tier:            snap.Tier.String(),
	}
	if snap.HasPrice && !snap.RatioUnbounded {
		view.CollateralRatioPct = snap.CollateralRatioPct.StringFixed(2)
		view.HealthFactor = snap.HealthFactor.StringFixed(4)
	}
	if snap.HasLiquidationPrice {
		view.LiquidationPrice = snap.LiquidationPrice.StringFixed(2)
	}
	if !snap.PriceUsed.Price.IsZero() {
		view.PriceUsed = snap.PriceUsed.Price.String()
	}
	writeJSON(w, http.StatusOK, view)
}

type transitionRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
	Secret string `json:"secret,omitempty"`
}

func (s *Server) decodeTransition(w http.ResponseWriter, r *http.Request) (transitionRequest, decimal.Decimal, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return transitionRequest{}, decimal.Decimal{}, false
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return transitionRequest{}, decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed amount")
		return transitionRequest{}, decimal.Decimal{}, false
	}
	return req, amount, true
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	if err := s.Protocol.Deposit(r.Context(), req.Owner, amount, req.Secret); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	if err := s.Protocol.Mint(r.Context(), req.Owner, amount); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	repaid, err := s.Protocol.Repay(r.Context(), req.Owner, amount)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid": repaid.String()})
}

func (s *Server) handlePriceStream(w http.ResponseWriter, r *http.Request) {
	if s.Prices == nil {
		writeError(w, http.StatusServiceUnavailable, "price stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := s.Prices.Subscribe()
	defer s.Prices.Unsubscribe(updates)

	// send a comment heartbeat periodically so proxies keep the connection
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	if point, ok := s.Protocol.CurrentPrice(); ok {
		s.writePriceEvent(w, flusher, point)
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case point, open := <-updates:
			if !open {
				return
			}
			s.writePriceEvent(w, flusher, point)
		}
	}
}

func (s *Server) writePriceEvent(w http.ResponseWriter, flusher http.Flusher, point domain.PricePoint) {
	payload, err := json.Marshal(toPriceView(point))
	if err != nil {
		s.Logger.Warn("marshal price event", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: price\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func toPriceView(point domain.PricePoint) priceView {
	return priceView{
		Asset:        point.Asset,
		Price:        point.Price.String(),
		Change24hPct: point.Change24hPct.String(),
		ObservedAt:   point.ObservedAt,
		Stale:        point.Stale,
	}
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrEmptyOwner):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnderCollateralized):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNoPosition), errors.Is(err, domain.ErrNoDebt):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPositionBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPriceUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
