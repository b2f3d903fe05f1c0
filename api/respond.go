// Package api holds the HTTP handlers served next to the simulation loop.
package api

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error reply.
type ErrorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError replies with an ErrorBody.
func WriteError(w http.ResponseWriter, status int, msg string, details map[string]string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Details: details})
}

// Authorized checks the bearer token when token is non-empty and writes a
// 401 reply when it does not match.
func Authorized(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" || r.Header.Get("Authorization") == "Bearer "+token {
		return true
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

// RequireMethod writes a 405 reply unless r uses method.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}
