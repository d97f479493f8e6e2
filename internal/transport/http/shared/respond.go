// Package shared holds the JSON response envelope used by every handler.
package shared

import (
	"encoding/json"
	"net/http"

	"certo/pkg/domerrors"
)

// Envelope is the response shape for every successful API call.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorEnvelope is the response shape for every failed API call.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// WriteError translates a domain error into the error envelope. Internal
// errors collapse to a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := domerrors.ToHTTPStatus(domerrors.CodeOf(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		StatusCode: status,
		Success:    false,
		Message:    domerrors.MessageOf(err),
	})
}

// DecodeJSON decodes a request body, rejecting unknown fields so partial
// updates can only touch allow-listed attributes.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domerrors.New(domerrors.CodeValidation, "invalid request body")
	}
	return nil
}
