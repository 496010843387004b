package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/artpar/promptgate/app"
)

// maxBodyBytes caps request and webhook payload sizes.
const maxBodyBytes = 1 << 20

// handleHealth responds to liveness probes.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// handleGenerate authorizes the call and forwards the prompt upstream.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(h.keyHeader)

	auth, err := h.gate.Authorize(r.Context(), key)
	if err != nil {
		h.rejectAuth(w, err)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.countRequest("/generate", http.StatusBadRequest)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a prompt field")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.countRequest("/generate", http.StatusBadRequest)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Prompt must not be empty")
		return
	}

	text, err := h.upstream.Generate(r.Context(), req.Prompt)
	if err != nil {
		// The call was admitted and charged; the upstream failing is a
		// gateway-side error, not the caller's.
		h.logger.Error().Err(err).Str("tier", auth.TierID).Msg("upstream generation failed")
		if h.metrics != nil {
			h.metrics.UpstreamErrors.Inc()
		}
		h.countRequest("/generate", http.StatusBadGateway)
		h.writeError(w, http.StatusBadGateway, "upstream_error", "Generation service unavailable")
		return
	}

	h.countRequest("/generate", http.StatusOK)
	h.writeJSON(w, http.StatusOK, generateResponse{Response: text})
}

type usageResponse struct {
	Tier      string `json:"tier"`
	Used      int64  `json:"used"`
	Limit     any    `json:"limit"`     // number or "unlimited"
	Remaining any    `json:"remaining"` // number or "unlimited"
}

// handleUsage returns a read-only quota snapshot. It never charges quota.
func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(h.keyHeader)
	if key == "" {
		h.rejectAuth(w, app.ErrUnauthenticated)
		return
	}

	usage, err := h.tracker.Usage(r.Context(), key)
	if err != nil {
		if errors.Is(err, app.ErrUnknownKey) {
			h.rejectAuth(w, app.ErrUnauthorized)
			return
		}
		h.countRequest("/usage", http.StatusInternalServerError)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Could not read usage")
		return
	}

	resp := usageResponse{
		Tier:      usage.TierID,
		Used:      usage.Used,
		Limit:     usage.Limit,
		Remaining: usage.Remaining,
	}
	if usage.Limit < 0 {
		resp.Limit = "unlimited"
		resp.Remaining = "unlimited"
	}

	h.countRequest("/usage", http.StatusOK)
	h.writeJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	Key string `json:"key"`
}

// handleReset zeroes usage counters. Requires the admin bearer token; an
// unset token disables the endpoint entirely.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if len(h.adminHash) == 0 {
		h.countRequest("/reset", http.StatusUnauthorized)
		h.writeError(w, http.StatusUnauthorized, "admin_disabled", "Administrative reset is not configured")
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || !h.hasher.Compare(h.adminHash, token) {
		h.countRequest("/reset", http.StatusUnauthorized)
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid admin token")
		return
	}

	var req resetRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.countRequest("/reset", http.StatusBadRequest)
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Body must be JSON")
			return
		}
	}

	if req.Key != "" {
		err = h.tracker.ResetOne(r.Context(), req.Key)
	} else {
		err = h.tracker.ResetAll(r.Context())
	}
	if err != nil {
		h.countRequest("/reset", http.StatusInternalServerError)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Reset failed")
		return
	}

	h.countRequest("/reset", http.StatusOK)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook receives payment provider callbacks. Exempt from key and
// quota checks; authenticity comes from the payload signature.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.countRequest("/webhook", http.StatusBadRequest)
		h.writeError(w, http.StatusBadRequest, "invalid_payload", "Failed to read body")
		return
	}

	signature := r.Header.Get(h.signatureHeader)

	outcome := h.ingestor.Handle(r.Context(), body, signature)
	if !outcome.Accepted {
		status := http.StatusBadRequest
		code := "rejected"
		switch outcome.Reason {
		case app.ReasonInvalidSignature:
			status = http.StatusUnauthorized
			code = "invalid_signature"
		case app.ReasonInvalidPayload:
			code = "invalid_payload"
		case app.ReasonUnknownPlan:
			code = "unknown_plan"
		}
		h.countRequest("/webhook", status)
		h.writeError(w, status, code, outcome.Reason)
		return
	}

	h.countRequest("/webhook", http.StatusOK)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rejectAuth maps authorization failures onto HTTP status codes.
func (h *Handler) rejectAuth(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		h.authFailure("missing_key")
		h.writeError(w, http.StatusUnauthorized, "missing_api_key", "API key header is required")
	case errors.Is(err, app.ErrUnauthorized):
		h.authFailure("unknown_key")
		h.writeError(w, http.StatusForbidden, "invalid_api_key", "API key not recognized")
	case errors.Is(err, app.ErrQuotaExceeded):
		if h.metrics != nil {
			h.metrics.QuotaRejections.Inc()
		}
		h.writeError(w, http.StatusTooManyRequests, "quota_exceeded", "Monthly request quota exceeded")
	default:
		h.logger.Error().Err(err).Msg("authorization failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Authorization failed")
	}
}

func (h *Handler) authFailure(reason string) {
	if h.metrics != nil {
		h.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}
