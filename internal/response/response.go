// Package response writes the JSON bodies returned by the API handlers.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the error envelope. Details carries the underlying error
// message on server failures.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Error writes {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}

// ErrorDetails writes {"error": msg, "details": err.Error()}.
func ErrorDetails(w http.ResponseWriter, status int, msg string, err error) {
	body := ErrorBody{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	JSON(w, status, body)
}

// MaxBodyBytes bounds the JSON bodies read by Decode.
const MaxBodyBytes = 1 << 20

// Decode reads a JSON request body of at most MaxBodyBytes into v,
// rejecting trailing data.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	return DecodeLimit(w, r, v, MaxBodyBytes)
}

// DecodeLimit is Decode with an explicit body size limit.
func DecodeLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// TooLarge reports whether err comes from a body over the Decode limit.
func TooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

var errTrailingData = errors.New("unexpected data after JSON body")
