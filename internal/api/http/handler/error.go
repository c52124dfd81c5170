package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

// handleError writes the client-facing response for err. Verification detail
// never leaves the server: every credential or token failure reads the same.
func handleError(w http.ResponseWriter, log *logger.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Auth handler: request failed",
			"error", err.Error())
	} else {
		log.Info("Auth handler: request rejected",
			"status", status,
			"error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenMalformed),
		errors.Is(err, model.ErrProviderVerificationFailed):
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, model.ErrEmailTaken):
		return http.StatusConflict, "email is already registered"
	case errors.Is(err, model.ErrAccountConflict):
		return http.StatusConflict, "account already exists"
	case errors.Is(err, model.ErrEmailRequired):
		return http.StatusBadRequest, "email is required"
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// validationMessage exposes the reason for input errors, which describe the
// request and not server state.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := model.ErrInvalidInput.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return "invalid request"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
