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

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, statusCode int, msg string) {
	RespondJSON(w, statusCode, ErrorResponse{Error: msg})
}
