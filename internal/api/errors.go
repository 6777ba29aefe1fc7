package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/home"
	"github.com/nerrad567/smarthome-core/internal/schedule"
	"github.com/nerrad567/smarthome-core/internal/user"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeRejected       = "device_rejected"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps device, home, user and schedule errors onto HTTP
// responses. Anything unrecognised is logged and reported as a 500 with
// the fallback message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
		return
	}
	writeError(w, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, schedule.ErrUnknownDevice),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, home.ErrNetworkNotFound),
		errors.Is(err, home.ErrHomeNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound, ErrCodeNotFound

	case errors.Is(err, schedule.ErrUnknownOperation),
		errors.Is(err, schedule.ErrInvalidArguments),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, device.ErrUnknownOperation),
		errors.Is(err, device.ErrInvalidArguments),
		isValidationError(err):
		return http.StatusBadRequest, ErrCodeValidation

	case errors.Is(err, device.ErrDeviceRejected):
		return http.StatusConflict, ErrCodeRejected

	case errors.Is(err, device.ErrNotInHub),
		errors.Is(err, user.ErrNotConnected),
		errors.Is(err, user.ErrNotHubUser):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, home.ErrNetworkExists),
		errors.Is(err, user.ErrUsernameExists),
		errors.Is(err, schedule.ErrDuplicateID):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, schedule.ErrEngineStopped):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidDeviceType) ||
		errors.Is(err, home.ErrInvalidName) ||
		errors.Is(err, home.ErrInvalidAddress) ||
		errors.Is(err, device.ErrNotHub) ||
		errors.Is(err, user.ErrInvalidUsername) ||
		errors.Is(err, user.ErrReservedUsername)
}
