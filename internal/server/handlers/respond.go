package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/boardsync/pkg/api"
)

// writeJSON сериализует ответ; ошибку кодирования уже не вернуть клиенту,
// только в лог.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError отдает JSON-ошибку единого формата
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, errText, message string) {
	writeJSON(w, logger, status, api.ErrorResponse{
		Error:   errText,
		Message: message,
	})
}
