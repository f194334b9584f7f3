package resource

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cargolog/console/model"
)

// errorBodyKeys is the canonical extraction order for the human-readable
// message in a backend error body. Endpoints are inconsistent about the
// field name; anything found past "detail" is a contract bug and is logged
// as such rather than silently accepted.
var errorBodyKeys = []string{"detail", "error", "message"}

const genericErrorMessage = "Erro inesperado no servidor."

// extractErrorMessage pulls the message out of an error body following the
// canonical fallback order. The second return names the key the message was
// found under ("" when the generic fallback was used).
func extractErrorMessage(body []byte) (string, string) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return genericErrorMessage, ""
	}
	for _, key := range errorBodyKeys {
		if v, ok := parsed[key].(string); ok && v != "" {
			return v, key
		}
	}
	return genericErrorMessage, ""
}

// envelopeForStatus converts an HTTP error response into an ErrorEnvelope,
// carrying the backend's own message verbatim.
func envelopeForStatus(status int, body []byte, route string, logger *zap.Logger) *model.ErrorEnvelope {
	msg, key := extractErrorMessage(body)
	if key != "detail" && logger != nil {
		// The backend contract names "detail"; everything else deviates.
		logger.Warn("backend error body deviates from contract",
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("message_key", key),
		)
	}

	switch status {
	case http.StatusBadRequest:
		return model.NewBadRequestError(msg)
	case http.StatusUnauthorized:
		return model.NewUnauthorizedError(msg)
	case http.StatusForbidden:
		return model.NewForbiddenError(msg)
	case http.StatusNotFound:
		return model.NewNotFoundError(msg)
	case http.StatusConflict:
		return model.NewConflictError(msg)
	case http.StatusGatewayTimeout:
		return model.NewBackendTimeoutError()
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return model.NewBackendUnavailableError()
	default:
		return model.NewBackendError(msg)
	}
}
