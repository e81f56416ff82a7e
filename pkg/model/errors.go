package model

import (
	"strings"
	"time"
)

// ClassifyError maps a provider error to a retry decision. Classification is
// string-based on purpose: the core cannot depend on any provider SDK's
// error types, and gateways wrap heterogeneous transports.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClass{Type: "none", RetryDecision: RetryFail}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return ErrorClass{Type: "rate_limit", RetryDecision: RetryBackoff, RetryAfter: 30 * time.Second}
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "503") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "502"):
		return ErrorClass{Type: "overloaded", RetryDecision: RetryBackoff, RetryAfter: 10 * time.Second}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "connection reset"):
		return ErrorClass{Type: "timeout", RetryDecision: RetryNow}
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return ErrorClass{Type: "auth", RetryDecision: RetryFail}
	case strings.Contains(msg, "context length") || strings.Contains(msg, "too long") || strings.Contains(msg, "maximum context"):
		return ErrorClass{Type: "context_length", RetryDecision: RetryFail}
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request"):
		return ErrorClass{Type: "invalid_request", RetryDecision: RetryFail}
	default:
		return ErrorClass{Type: "unknown", RetryDecision: RetryFail}
	}
}
