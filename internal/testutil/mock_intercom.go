// Package testutil provides testing utilities for the Intercom exporter.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPage is one listing page served by MockIntercom.
type MockPage struct {
	// IDs are the conversation refs on this page.
	IDs []string

	// Next is pages.next.starting_after; empty marks the last page.
	Next string

	// Remaining is the X-RateLimit-Remaining value; negative omits the header.
	Remaining int
}

// PartFixture is one reply of a conversation fixture.
type PartFixture struct {
	AuthorID    string
	AuthorEmail string
	CreatedAt   int64
	Body        string
}

// DetailFixture describes a conversation detail response.
type DetailFixture struct {
	ID          string
	CreatedAt   int64
	AuthorID    string
	AuthorEmail string
	Body        string
	// AssigneeID is rendered as a JSON number when numeric, null when empty.
	AssigneeID string
	Parts      []PartFixture
}

// RecordedRequest is a request seen by the mock.
type RecordedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
}

// MockIntercom is a configurable mock Intercom API for testing.
type MockIntercom struct {
	server   *httptest.Server
	mu       sync.RWMutex
	token    string
	pages    map[string]MockPage
	details  map[string]string
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	etags    bool

	requests         []RecordedRequest
	conditionalCount int
}

// NewMockIntercom creates a new mock server. When token is non-empty every
// request must carry it as a bearer token or receives 401.
func NewMockIntercom(token string) *MockIntercom {
	mock := &MockIntercom{
		token:    token,
		pages:    make(map[string]MockPage),
		details:  make(map[string]string),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockIntercom) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockIntercom) Close() {
	m.server.Close()
}

// SetPage registers the listing page returned for a starting_after value
// ("" is the first page).
func (m *MockIntercom) SetPage(startingAfter string, page MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[startingAfter] = page
}

// SetDetail registers a conversation detail.
func (m *MockIntercom) SetDetail(d DetailFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[d.ID] = DetailJSON(d)
}

// SetHandler overrides the handler for an exact path.
func (m *MockIntercom) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// EnableETags makes detail responses carry an ETag and answer matching
// If-None-Match requests with 304.
func (m *MockIntercom) EnableETags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags = true
}

// Requests returns a copy of all recorded requests.
func (m *MockIntercom) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the recorded requests for one path.
func (m *MockIntercom) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockIntercom) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockIntercom) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

func (m *MockIntercom) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	})
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}
	handler, custom := m.handlers[r.URL.Path]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if m.token != "" && r.Header.Get("Authorization") != "Bearer "+m.token {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Access Token Invalid")
		return
	}

	if custom {
		handler(w, r)
		return
	}

	switch {
	case r.URL.Path == "/conversations":
		m.serveListing(w, r)
	case strings.HasPrefix(r.URL.Path, "/conversations/"):
		m.serveDetail(w, r, strings.TrimPrefix(r.URL.Path, "/conversations/"))
	default:
		WriteError(w, http.StatusNotFound, "not_found", "Resource Not Found")
	}
}

func (m *MockIntercom) serveListing(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	page, ok := m.pages[r.URL.Query().Get("starting_after")]
	m.mu.RUnlock()

	if !ok {
		WriteError(w, http.StatusBadRequest, "parameter_invalid", "unknown starting_after")
		return
	}

	if page.Remaining >= 0 {
		w.Header().Set("X-RateLimit-Limit", "1000")
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(page.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(10*time.Second).Unix(), 10))
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ListingJSON(page, r.URL.Query().Get("per_page"))))
}

func (m *MockIntercom) serveDetail(w http.ResponseWriter, r *http.Request, id string) {
	m.mu.RLock()
	body, ok := m.details[id]
	etags := m.etags
	m.mu.RUnlock()

	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "Resource Not Found")
		return
	}

	if etags {
		etag := fmt.Sprintf(`"%s-v1"`, id)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// WriteError writes an Intercom error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]any{
		"type": "error.list",
		"errors": []map[string]string{
			{"code": code, "message": message},
		},
	})
	w.Write(body)
}

// ListingJSON renders a listing page body.
func ListingJSON(page MockPage, perPage string) string {
	refs := make([]map[string]string, len(page.IDs))
	for i, id := range page.IDs {
		refs[i] = map[string]string{"type": "conversation", "id": id}
	}

	pages := map[string]any{"type": "pages"}
	if n, err := strconv.Atoi(perPage); err == nil {
		pages["per_page"] = n
	}
	if page.Next != "" {
		pages["next"] = map[string]any{"starting_after": page.Next}
	}

	body, _ := json.Marshal(map[string]any{
		"type":          "conversation.list",
		"conversations": refs,
		"total_count":   len(page.IDs),
		"pages":         pages,
	})
	return string(body)
}

// DetailJSON renders a conversation detail body.
func DetailJSON(d DetailFixture) string {
	parts := make([]map[string]any, len(d.Parts))
	for i, p := range d.Parts {
		parts[i] = map[string]any{
			"type":       "conversation_part",
			"id":         fmt.Sprintf("%s-part-%d", d.ID, i+1),
			"part_type":  "comment",
			"body":       p.Body,
			"created_at": p.CreatedAt,
			"author":     map[string]any{"type": "user", "id": p.AuthorID, "email": p.AuthorEmail},
		}
	}

	var assignee any
	if d.AssigneeID != "" {
		if n, err := strconv.ParseInt(d.AssigneeID, 10, 64); err == nil {
			assignee = n
		} else {
			assignee = d.AssigneeID
		}
	}

	body, _ := json.Marshal(map[string]any{
		"type":              "conversation",
		"id":                d.ID,
		"created_at":        d.CreatedAt,
		"updated_at":        d.CreatedAt,
		"state":             "open",
		"admin_assignee_id": assignee,
		"source": map[string]any{
			"type":   "conversation",
			"id":     d.ID + "-source",
			"body":   d.Body,
			"author": map[string]any{"type": "user", "id": d.AuthorID, "email": d.AuthorEmail},
		},
		"conversation_parts": map[string]any{
			"type":               "conversation_part.list",
			"conversation_parts": parts,
			"total_count":        len(parts),
		},
	})
	return string(body)
}
