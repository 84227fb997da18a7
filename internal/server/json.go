package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is returned for all error responses. Defects is set when a
// story fails validation.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Defects []string `json:"defects,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeDefects(w http.ResponseWriter, msg string, defects []string) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: msg, Defects: defects})
}
