package ratelimit

import (
	"encoding/json"
	"net/http"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

const (
	ErrorCodeRateLimited = "rate_limit_exceeded"
	ErrorCodeUnavailable = "rate_limiter_unavailable"

	defaultRateLimitMessage   = "Rate limit exceeded. Please try again later."
	defaultUnavailableMessage = "Rate limiting is temporarily unavailable. Please try again later."
)

// ErrorBody é o JSON devolvido em rejeições.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
	ResetAt    int64  `json:"reset_at"`
}

func writeRejection(w http.ResponseWriter, status int, dec domain.Decision, policy domain.Policy, now time.Time) {
	body := ErrorBody{
		Error:      ErrorCodeRateLimited,
		Message:    policy.Message,
		RetryAfter: dec.RetryAfterSeconds(),
		ResetAt:    resetAt(now, dec.RetryAfter),
	}
	if dec.Reason == domain.ReasonBackendUnavailable {
		body.Error = ErrorCodeUnavailable
		body.Message = defaultUnavailableMessage
	} else if body.Message == "" {
		body.Message = defaultRateLimitMessage
	}

	w.Header().Set("Retry-After", formatInt(body.RetryAfter))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
