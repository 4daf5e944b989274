package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"escrowswap/indexer"
	"escrowswap/native/listing"
	"escrowswap/observability"
	escrowotel "escrowswap/observability/otel"
)

const moduleName = "listing"

// Metrics receives per-request telemetry.
type Metrics interface {
	Observe(module, method string, code int, duration time.Duration)
	RecordThrottle(module, reason string)
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	// RequestsPerSecond and Burst bound each client address. A zero rate
	// disables limiting.
	RequestsPerSecond float64
	Burst             int
	// StreamBuffer is the number of events queued per websocket subscriber
	// before events are dropped.
	StreamBuffer int
}

// Server exposes the listing engine over JSON-RPC, the event stream over a
// websocket, and health and metrics endpoints.
type Server struct {
	engine  *listing.Engine
	index   *indexer.Indexer
	hub     *Hub
	cfg     ServerConfig
	logger  *slog.Logger
	metrics Metrics
	tracer  trace.Tracer
	replay  *replayGuard
	nowFn   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer wires the RPC surface. index may be nil, in which case the
// search and fill history methods report that the index is unavailable.
func NewServer(engine *listing.Engine, index *indexer.Indexer, hub *Hub, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(cfg.StreamBuffer)
	}
	return &Server{
		engine:   engine,
		index:    index,
		hub:      hub,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		metrics:  observability.ModuleMetrics(),
		tracer:   escrowotel.Tracer("escrowswap/rpc"),
		replay:   newReplayGuard(),
		nowFn:    time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetNowFunc overrides the clock used for deadline checks.
func (s *Server) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

// SetMetrics replaces the telemetry sink. Passing nil restores the default
// Prometheus registry.
func (s *Server) SetMetrics(m Metrics) {
	if m == nil {
		m = observability.ModuleMetrics()
	}
	s.metrics = m
}

func (s *Server) now() time.Time { return s.nowFn() }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/rpc", s.handle)
	r.Post("/", s.handle)
	r.Get("/v1/events", s.handleEventsWS)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "listingd")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := map[string]interface{}{"status": "ok"}
	if _, err := s.engine.Platform(); err != nil {
		status["platform"] = listing.Condition(err)
	} else {
		status["platform"] = "initialized"
	}
	status["indexer"] = s.index != nil
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) allow(r *http.Request) bool {
	if s.cfg.RequestsPerSecond <= 0 {
		return true
	}
	id := r.RemoteAddr
	if host, _, err := net.SplitHostPort(id); err == nil {
		id = host
	}
	s.mu.Lock()
	limiter, ok := s.limiters[id]
	if !ok {
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), burst)
		s.limiters[id] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// handle is the JSON-RPC entry point.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(r) {
		s.metrics.RecordThrottle(moduleName, "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	started := time.Now()
	ctx, span := s.tracer.Start(r.Context(), req.Method)
	result, rpcErr := s.dispatch(ctx, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", code))
	}
	span.End()
	s.metrics.Observe(moduleName, req.Method, code, time.Since(started))
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

// mutation is a signed, state-changing method.
type mutation func(ctx context.Context, caller [20]byte, payload json.RawMessage) (interface{}, error)

// query is a read-only method.
type query func(ctx context.Context, params []json.RawMessage) (interface{}, error)

func (s *Server) dispatch(ctx context.Context, req *RPCRequest) (interface{}, *RPCError) {
	if fn, ok := s.mutations()[req.Method]; ok {
		call, rpcErr := s.verifyEnvelope(req.Method, req.Params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		result, err := fn(ctx, call.caller, call.payload)
		if err != nil {
			if listing.IsRetryable(err) {
				s.replay.release(call.digest)
			}
			s.logFailure(req.Method, call.caller, err)
			return nil, toRPCError(err)
		}
		return result, nil
	}
	if fn, ok := s.queries()[req.Method]; ok {
		result, err := fn(ctx, req.Params)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil
	}
	return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method, status: http.StatusNotFound}
}

func (s *Server) mutations() map[string]mutation {
	return map[string]mutation{
		"platform_initialize":      s.handlePlatformInitialize,
		"platform_updateConfig":    s.handlePlatformUpdateConfig,
		"platform_pause":           s.handlePlatformPause,
		"platform_resume":          s.handlePlatformResume,
		"platform_setFeeCollector": s.handlePlatformSetFeeCollector,
		"whitelist_manage":         s.handleWhitelistManage,
		"user_initialize":          s.handleUserInitialize,
		"user_updatePreferences":   s.handleUserUpdatePreferences,
		"listing_create":           s.handleListingCreate,
		"listing_update":           s.handleListingUpdate,
		"listing_swap":             s.handleListingSwap,
		"listing_cancel":           s.handleListingCancel,
		"listing_closeExpired":     s.handleListingCloseExpired,
	}
}

func (s *Server) queries() map[string]query {
	return map[string]query{
		"platform_get":   s.handlePlatformGet,
		"whitelist_get":  s.handleWhitelistGet,
		"whitelist_list": s.handleWhitelistList,
		"user_get":       s.handleUserGet,
		"user_listings":  s.handleUserListings,
		"listing_get":    s.handleListingGet,
		"listing_list":   s.handleListingList,
		"listing_quote":  s.handleListingQuote,
		"listing_search": s.handleListingSearch,
		"listing_fills":  s.handleListingFills,
		"vault_get":      s.handleVaultGet,
		"balance_get":    s.handleBalanceGet,
	}
}

func (s *Server) logFailure(method string, caller [20]byte, err error) {
	level := slog.LevelInfo
	if listing.IsFatal(err) || listing.Category(err) == listing.CategoryInternal {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "operation rejected",
		slog.String("method", method),
		slog.String("caller", hexAddress(caller)),
		slog.String("condition", listing.Condition(err)),
		slog.Any("error", err),
	)
}
