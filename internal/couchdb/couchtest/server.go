// Package couchtest provides an in-process fake of the CouchDB endpoints the
// refresher calls.
package couchtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Server answers /_all_dbs, /{db}/_design/views and
// /{db}/_design/views/_view/{view}. Configure it before issuing requests.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Response of /_all_dbs
	Databases []string

	// Raw design document body per database, missing databases answer 404
	DesignDocs map[string]string

	// Status overrides keyed by request path, e.g. "/_all_dbs"
	Status map[string]int

	// Paths whose connection is closed without a response
	Drop map[string]bool

	requests []string
}

func NewServer(t *testing.T) *Server {
	s := &Server{
		DesignDocs: make(map[string]string),
		Status:     make(map[string]int),
		Drop:       make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)

	return s
}

// Requests returns every request uri received so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.requests...)
}

// ViewRequests returns the request uris that queried a view.
func (s *Server) ViewRequests() []string {
	var views []string
	for _, r := range s.Requests() {
		if strings.Contains(r, "/_view/") {
			views = append(views, r)
		}
	}
	return views
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.RequestURI())
	status, hasStatus := s.Status[r.URL.Path]
	drop := s.Drop[r.URL.Path]
	s.mu.Unlock()

	if drop {
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
				return
			}
		}
	}

	if hasStatus {
		writeError(w, status)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "_all_dbs":
		s.mu.Lock()
		body, _ := json.Marshal(s.Databases)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)

	case len(parts) == 3 && parts[1] == "_design" && parts[2] == "views":
		s.mu.Lock()
		doc, ok := s.DesignDocs[parts[0]]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))

	case len(parts) == 5 && parts[1] == "_design" && parts[3] == "_view":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_rows":1,"offset":0,"rows":[{"id":"x","key":null,"value":1}]}`))

	default:
		writeError(w, http.StatusNotFound)
	}
}

func writeError(w http.ResponseWriter, status int) {
	errType := "error"
	switch status {
	case http.StatusNotFound:
		errType = "not_found"
	case http.StatusUnauthorized:
		errType = "unauthorized"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  errType,
		"reason": http.StatusText(status),
	})
}
