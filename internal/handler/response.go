package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // headers are already out; nothing useful to do on failure
}

// errorResponse is the wire shape for every error this API returns: a
// machine-readable code plus a human-readable message.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes an errorResponse with the given status code.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body into v. Unknown fields are rejected so
// a typoed field in a trade or credentials body fails loudly instead of
// silently defaulting to zero. Content-Type enforcement lives in the
// contentTypeJSON middleware, not here.
func ParseJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("request body is not valid JSON for this endpoint")
	}
	return nil
}
