// Package web provides the public HTTP surface.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/artpar/promptgate/adapters/metrics"
	"github.com/artpar/promptgate/app"
	"github.com/artpar/promptgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handler serves the gateway endpoints.
type Handler struct {
	gate     *app.AuthGate
	tracker  *app.QuotaTracker
	ingestor *app.WebhookIngestor
	upstream ports.Upstream

	keyHeader       string
	signatureHeader string

	hasher     ports.Hasher
	adminHash  []byte // bcrypt hash of the admin token; nil disables /reset
	idgen      ports.IDGenerator
	metrics    *metrics.Collector
	metricsOn  bool
	metricsPth string

	logger zerolog.Logger
}

// Deps contains dependencies for the web handler.
type Deps struct {
	Gate     *app.AuthGate
	Tracker  *app.QuotaTracker
	Ingestor *app.WebhookIngestor
	Upstream ports.Upstream

	KeyHeader       string
	SignatureHeader string

	Hasher      ports.Hasher
	AdminHash   []byte
	IDGen       ports.IDGenerator  // request IDs; nil disables
	Metrics     *metrics.Collector // may be nil
	MetricsPath string
	Logger      zerolog.Logger
}

// New creates the HTTP handler.
func New(deps Deps) *Handler {
	return &Handler{
		gate:            deps.Gate,
		tracker:         deps.Tracker,
		ingestor:        deps.Ingestor,
		upstream:        deps.Upstream,
		keyHeader:       deps.KeyHeader,
		signatureHeader: deps.SignatureHeader,
		hasher:          deps.Hasher,
		adminHash:       deps.AdminHash,
		idgen:           deps.IDGen,
		metrics:         deps.Metrics,
		metricsOn:       deps.Metrics != nil && deps.MetricsPath != "",
		metricsPth:      deps.MetricsPath,
		logger:          deps.Logger,
	}
}

// Routes returns the chi router for the gateway.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.idgen != nil {
		r.Use(h.requestID)
	}

	r.Get("/", h.handleHealth)
	r.Post("/generate", h.handleGenerate)
	r.Get("/usage", h.handleUsage)
	r.Post("/reset", h.handleReset)
	r.Post("/webhook", h.handleWebhook)

	if h.metricsOn {
		r.Method(http.MethodGet, h.metricsPth, promhttp.Handler())
	}

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Routes().ServeHTTP(w, r)
}

// requestIDHeader carries the request correlation ID.
const requestIDHeader = "X-Request-ID"

// requestID echoes the caller's correlation ID or assigns a fresh one.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = h.idgen.New()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with a status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response")
	}
}

// writeError writes a JSON error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// countRequest records a request outcome, if metrics are enabled.
func (h *Handler) countRequest(path string, status int) {
	if h.metrics != nil {
		h.metrics.RequestsTotal.WithLabelValues(path, httpStatusLabel(status)).Inc()
	}
}

func httpStatusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
