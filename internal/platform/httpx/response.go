package httpx

import (
	"encoding/json"
	"net/http"
)

// envelope is the success half of the canonical JSON envelope.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteData writes a success envelope wrapping the provided payload.
func WriteData(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{Success: true, Data: data})
}

// WriteMessage writes a success envelope with a message and optional payload.
func WriteMessage(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, envelope{Success: true, Message: sanitize(message, 512), Data: data})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
