package site

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error body for every failed request. OK is always
// false so that page scripts can branch on a single `ok` flag for both
// success and failure responses.
type APIError struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Hint    string `json:"hint,omitempty"`
}

func WriteAPIError(w http.ResponseWriter, status int, err APIError) {
	err.OK = false
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
