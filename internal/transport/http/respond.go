package httptransport

import (
	"encoding/json"
	"net/http"

	"duffel/pkg/fault"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := fault.CodeOf(err)
	WriteJSON(w, fault.HTTPStatus(code), errorBody{
		Error:   string(code),
		Message: fault.Message(err),
	})
}
