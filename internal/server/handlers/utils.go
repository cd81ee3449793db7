package handlers

import (
	"encoding/json"
	"net/http"
)

// RespondJSON sends a JSON response with the given status code and data
func RespondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// RespondError sends {"error": msg}.
func RespondError(w http.ResponseWriter, statusCode int, msg string) {
	RespondJSON(w, statusCode, map[string]string{"error": msg})
}
