// Package reliability classifies upstream realtime failures for logging.
package reliability

// IsRetryableRealtimeErrorCode classifies transient upstream realtime error
// codes. Retryable errors leave the model leg alone; the session recovers on
// the next qualifying event rather than through an explicit retry.
func IsRetryableRealtimeErrorCode(code string) bool {
	switch code {
	case "rate_limit_exceeded", "rate_limited", "resource_exhausted", "server_error", "session_expired":
		return true
	default:
		return false
	}
}
