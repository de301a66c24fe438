package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes a JSON error response with a custom message. The request ID
// is echoed from the X-Request-ID response header when RequestIDMiddleware set it.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError writes a generic internal server error (500). The cause is not
// exposed to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
