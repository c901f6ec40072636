package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error to an HTTP status and error code. Failures that
// carry no recognizable kind use defaultStatusCode.
func statusFor(err error, defaultStatusCode int) (int, string) {
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return http.StatusNotFound, "FILE_NOT_FOUND"
	case errors.Is(err, metadata.ErrConfiguration):
		return http.StatusNotFound, "DISK_UNAVAILABLE"
	case errors.Is(err, metadata.ErrUnsupported):
		return http.StatusNotImplemented, "NOT_SUPPORTED"
	case errors.Is(err, metadata.ErrReadOnly):
		return http.StatusForbidden, "READ_ONLY"
	case errors.Is(err, pathutil.ErrPathTraversal):
		return http.StatusBadRequest, "INVALID_PATH"
	case errors.Is(err, auth.ErrAuthenticationFailed), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "AUTHENTICATION_FAILED"
	case defaultStatusCode == http.StatusBadRequest:
		return defaultStatusCode, "BAD_REQUEST"
	default:
		return defaultStatusCode, "INTERNAL_ERROR"
	}
}

// SendErrorResponse sends a standardized JSON error response
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	statusCode, errorCode := statusFor(err, defaultStatusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	message := err.Error()
	if statusCode >= http.StatusInternalServerError && statusCode != http.StatusNotImplemented {
		// backend causes may carry bucket names or hosts
		message = http.StatusText(statusCode)
	}

	response := ErrorResponse{
		Code:    errorCode,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
		fmt.Fprintf(w, "Internal error occurred")
	}

	logger.Info("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error":"Failed to encode response"}`)
	}
}
