package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"econscour/pkg/apierror"
)

// Response represents a standard API response.
type Response struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Meta     *Meta    `json:"meta,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func write(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Response{Success: true, Data: data})
}

// JSONWithMeta sends a JSON response with pagination metadata.
func JSONWithMeta(w http.ResponseWriter, statusCode int, data any, meta Meta) {
	write(w, statusCode, Response{Success: true, Data: data, Meta: &meta})
}

// WithWarnings sends a 200 response carrying non-fatal warnings, such as the
// dates a partial load could not fetch.
func WithWarnings(w http.ResponseWriter, data any, warnings []string) {
	write(w, http.StatusOK, Response{Success: true, Data: data, Warnings: warnings})
}

// Error sends an error response. Errors that are not an *apierror.Error become
// a 500 without leaking their message.
func Error(w http.ResponseWriter, err error) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierror.InternalError("an unexpected error occurred")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	_, _ = w.Write(apiErr.ToJSON())
}

// NoContent sends a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Accepted sends a 202 Accepted response for work that continues in the background.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// OK sends a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}
