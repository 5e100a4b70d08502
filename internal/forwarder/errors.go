package forwarder

import (
	"encoding/json"
	"net/http"
)

// Kind classifies a forwarding failure. Callers branch on the kind; each
// kind maps to one response status and a machine-readable code.
type Kind string

const (
	KindNoUpstream Kind = "NO_UPSTREAM_AVAILABLE"
	KindTimeout    Kind = "UPSTREAM_TIMEOUT"
	KindTransport  Kind = "UPSTREAM_TRANSPORT_FAILURE"
	KindValidation Kind = "VALIDATION_FAILURE"
)

// StatusCode maps an error kind to the status returned to the inbound caller.
func (k Kind) StatusCode() int {
	switch k {
	case KindNoUpstream:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransport:
		return http.StatusBadGateway
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// writeError sends a fully-buffered JSON error response. Error paths never
// stream, so the caller always sees a complete body.
func writeError(w http.ResponseWriter, kind Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.StatusCode())

	_ = json.NewEncoder(w).Encode(errorBody{
		Success: false,
		Error:   errorDetail{Code: kind, Message: message},
	})
}
