package couchdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error is a non-2xx response from the server. ErrorType and Reason come
// from CouchDB's {"error": ..., "reason": ...} body when present.
type Error struct {
	StatusCode int    `json:"status_code"`
	ErrorType  string `json:"error"`
	Reason     string `json:"reason"`
}

func (e *Error) Error() string {
	if e.ErrorType == "" {
		return fmt.Sprintf("couchdb: status %d", e.StatusCode)
	}
	return fmt.Sprintf("couchdb: status %d: %s - %s", e.StatusCode, e.ErrorType, e.Reason)
}

func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *Error) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err carries a 404 from the server.
func IsNotFound(err error) bool {
	var couchErr *Error
	return errors.As(err, &couchErr) && couchErr.IsNotFound()
}

// StatusCode returns the HTTP status carried by err, or 0 for transport errors.
func StatusCode(err error) int {
	var couchErr *Error
	if errors.As(err, &couchErr) {
		return couchErr.StatusCode
	}
	return 0
}

func newError(resp *http.Response) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return e
	}

	// Best effort, proxies in front of CouchDB may answer with HTML
	_ = json.Unmarshal(body, e)
	e.StatusCode = resp.StatusCode

	return e
}
