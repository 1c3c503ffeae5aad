package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SleepyStorybook/internal/models"
)

// internalErrorBody is written when an envelope cannot be encoded.
var internalErrorBody = mustMarshal(models.Error("Internal server error"))

func mustMarshal(v models.APIResponse) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("api: cannot encode fallback envelope: " + err.Error())
	}
	return b
}

// writeEnvelope encodes resp with the given status code, degrading to a 500 with
// internalErrorBody if the payload does not encode.
func writeEnvelope(w http.ResponseWriter, statusCode int, resp models.APIResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Server.writeEnvelope: failed to encode response", "status", statusCode, "error", err)
		body, statusCode = internalErrorBody, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeEnvelope: failed to write response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, result interface{}) {
	writeEnvelope(w, http.StatusOK, models.Success(result))
}

func writeOKMessage(w http.ResponseWriter, message string, result interface{}) {
	writeEnvelope(w, http.StatusOK, models.SuccessWithMessage(message, result))
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeEnvelope(w, statusCode, models.Error(message))
}
