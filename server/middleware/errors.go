package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// writeError sends the same {code, message} body the handlers use. It is
// duplicated here because handlers imports this package.
func writeError(w http.ResponseWriter, logger *zap.Logger, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{"code": code, "message": err.Error()}
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		logger.Error("Failed to write error response", zap.Error(encodeErr))
	}

	logger.Info("Error response sent",
		zap.String("error_code", code),
		zap.Int("status_code", status),
		zap.Error(err))
}
