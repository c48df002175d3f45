// Package cdmontest provides an in-memory CDmon API for tests.
package cdmontest

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// API paths served by Server.
const (
	PathList   = "/dns/records"
	PathAdd    = "/dns/record/add"
	PathEdit   = "/dns/record/edit"
	PathDelete = "/dns/record/delete"
)

// Record is a stored DNS record.
type Record struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

type request struct {
	Domain  string          `json:"domain"`
	Token   string          `json:"token"`
	ID      json.RawMessage `json:"id"`
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Content string          `json:"content"`
	TTL     int             `json:"ttl"`
}

// Server is a minimal CDmon domains API. Use it as an http.Handler with
// httptest.NewServer and point the client's API URL at the server URL.
type Server struct {
	mu       sync.Mutex
	apiKey   string
	zones    map[string][]Record
	nextID   int
	calls    []string
	failNow  map[string][]int // status codes returned before handling
	failPost map[string][]int // status codes returned after handling
	onList   func(domain string)
}

// New returns a server that accepts apiKey and knows the given domains.
func New(apiKey string, domains ...string) *Server {
	s := &Server{
		apiKey:   apiKey,
		zones:    map[string][]Record{},
		failNow:  map[string][]int{},
		failPost: map[string][]int{},
	}
	for _, d := range domains {
		s.zones[d] = nil
	}
	return s
}

// FailNext makes the next len(statuses) calls to path fail with the given
// HTTP statuses without touching any state.
func (s *Server) FailNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNow[path] = append(s.failNow[path], statuses...)
}

// FailAfterApply makes the next call to path apply its change and then
// answer with status, as if the response had been lost.
func (s *Server) FailAfterApply(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPost[path] = append(s.failPost[path], status)
}

// OnList registers fn to run on every list call, after the listing has been
// taken from the current state. fn may call AddRecord and DeleteRecord to
// simulate a concurrent client.
func (s *Server) OnList(fn func(domain string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onList = fn
}

// AddRecord stores a record directly and returns its ID.
func (s *Server) AddRecord(domain, recType, name, content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(domain, Record{Type: recType, Name: name, Content: content, TTL: 60})
}

// DeleteRecord removes the record with id from domain and reports whether it
// existed.
func (s *Server) DeleteRecord(domain string, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.zones[domain]
	for i, rec := range recs {
		if rec.ID == id {
			s.zones[domain] = append(recs[:i:i], recs[i+1:]...)
			return true
		}
	}
	return false
}

// Records returns a copy of the records stored for domain, ordered by ID.
func (s *Server) Records(domain string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Record(nil), s.zones[domain]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Calls returns the request paths in the order they were received.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many requests were made to path.
func (s *Server) CallCount(path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == path {
			n++
		}
	}
	return n
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, r.URL.Path)
	if q := s.failNow[r.URL.Path]; len(q) > 0 {
		s.failNow[r.URL.Path] = q[1:]
		s.mu.Unlock()
		writeJSON(w, q[0], map[string]any{"success": false, "message": http.StatusText(q[0])})
		return
	}
	s.mu.Unlock()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "message": "method not allowed"})
		return
	}

	var req request
	data, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(data, &req)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}

	if req.Token == "" {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "No API key found in request"})
		return
	}
	if req.Token != s.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid API token"})
		return
	}

	s.mu.Lock()
	if _, ok := s.zones[req.Domain]; !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Domain not found"})
		return
	}
	status, body := s.handleLocked(r.URL.Path, req)
	var postStatus int
	if q := s.failPost[r.URL.Path]; len(q) > 0 && status == http.StatusOK {
		s.failPost[r.URL.Path] = q[1:]
		postStatus = q[0]
	}
	onList := s.onList
	s.mu.Unlock()

	// The hook runs before the reply is sent so that the client observes
	// the pre-hook state and the change lands before its next request.
	if r.URL.Path == PathList && onList != nil {
		onList(req.Domain)
	}
	if postStatus != 0 {
		writeJSON(w, postStatus, map[string]any{"success": false, "message": http.StatusText(postStatus)})
		return
	}
	writeJSON(w, status, body)
}

func (s *Server) handleLocked(path string, req request) (int, any) {
	switch path {
	case PathList:
		records := append([]Record{}, s.zones[req.Domain]...)
		return http.StatusOK, map[string]any{"success": true, "data": map[string]any{"records": records}}
	case PathAdd:
		if !strings.EqualFold(req.Type, "TXT") || req.Name == "" {
			return http.StatusUnprocessableEntity, map[string]any{"success": false, "message": "invalid record"}
		}
		id := s.addLocked(req.Domain, Record{Type: req.Type, Name: req.Name, Content: req.Content, TTL: req.TTL})
		return http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": id}}
	case PathEdit:
		i := s.indexLocked(req.Domain, req.ID)
		if i < 0 {
			return http.StatusBadRequest, map[string]any{"success": false, "message": "Record not found"}
		}
		rec := &s.zones[req.Domain][i]
		rec.Name, rec.Content, rec.TTL = req.Name, req.Content, req.TTL
		return http.StatusOK, map[string]any{"success": true}
	case PathDelete:
		i := s.indexLocked(req.Domain, req.ID)
		if i < 0 {
			return http.StatusBadRequest, map[string]any{"success": false, "message": "Record not found"}
		}
		recs := s.zones[req.Domain]
		s.zones[req.Domain] = append(recs[:i:i], recs[i+1:]...)
		return http.StatusOK, map[string]any{"success": true}
	default:
		return http.StatusNotFound, map[string]any{"success": false, "message": "unknown endpoint"}
	}
}

func (s *Server) addLocked(domain string, rec Record) int {
	s.nextID++
	rec.ID = s.nextID
	s.zones[domain] = append(s.zones[domain], rec)
	return rec.ID
}

func (s *Server) indexLocked(domain string, rawID json.RawMessage) int {
	var id int
	if err := json.Unmarshal(rawID, &id); err != nil {
		return -1
	}
	for i, rec := range s.zones[domain] {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
