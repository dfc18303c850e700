// Package httputil holds the JSON response helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/banshee-data/arlabel/internal/monitoring"
)

// maxBodyBytes bounds request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// DecodeJSON decodes a bounded request body into v, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return io.ErrUnexpectedEOF
	}
	return nil
}
