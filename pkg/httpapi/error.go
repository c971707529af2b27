// Package httpapi holds the JSON wire envelope shared by the API
// controllers and middleware: plain payloads for success, a code/message
// envelope for failures.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the failure shape every endpoint emits. Code is a stable
// machine-readable identifier (the IAM_* taxonomy), Message is for humans,
// and Meta carries structured detail such as validation reasons.
type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// WriteJSON writes payload with the given status and the JSON content type.
// A nil payload sends headers only.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

// WriteError emits the error envelope. An empty message falls back to the
// standard status text so clients always get something printable.
func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}
