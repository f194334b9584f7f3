// Package integration exercises the console end to end: real definitions
// from the repository's definitions directory, the full router and
// middleware chain, and a mock upstream domain API.
package integration

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/cargolog/console/model"
)

// MockBackend is an in-memory upstream domain API. Collections are keyed
// by route; every request is appended to the call log.
type MockBackend struct {
	mu     sync.Mutex
	data   map[string]map[string]model.Record
	nextID int
	calls  []string

	// SignInPassword is the only password the mock accepts.
	SignInPassword string
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		data:           map[string]map[string]model.Record{},
		nextID:         1000,
		SignInPassword: "secret",
	}
}

// Seed inserts a record into a collection.
func (b *MockBackend) Seed(route, id string, rec model.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data[route] == nil {
		b.data[route] = map[string]model.Record{}
	}
	b.data[route][id] = rec
}

// EnsureCollection registers an empty collection so list calls succeed.
func (b *MockBackend) EnsureCollection(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data[route] == nil {
		b.data[route] = map[string]model.Record{}
	}
}

// Calls returns a copy of the request log.
func (b *MockBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *MockBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/sessions":
		b.handleSignIn(w, r)
	case r.Method == http.MethodPost && (strings.Contains(r.URL.Path, "/importall-") || strings.HasSuffix(r.URL.Path, "/import/edi")):
		b.handleImport(w, r)
	case r.Method == http.MethodPost:
		b.handleCreate(w, r)
	case r.Method == http.MethodGet && b.data[r.URL.Path] != nil:
		b.handleList(w, r)
	default:
		b.handleRecord(w, r)
	}
}

func (b *MockBackend) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	if body["password"] != b.SignInPassword {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Usuário ou senha inválidos."})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"token":     "tok-mock",
		"userId":    "u-1",
		"companyId": "c-1",
		"name":      "Operador",
	})
}

func (b *MockBackend) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "multipart inválido"})
		return
	}
	var files int
	for _, headers := range r.MultipartForm.File {
		files += len(headers)
	}
	json.NewEncoder(w).Encode(map[string]any{"imported": files})
}

func (b *MockBackend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec model.Record
	json.NewDecoder(r.Body).Decode(&rec)
	b.nextID++
	id := strconv.Itoa(b.nextID)
	rec["id"] = id
	if b.data[r.URL.Path] == nil {
		b.data[r.URL.Path] = map[string]model.Record{}
	}
	b.data[r.URL.Path][id] = rec
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}

func (b *MockBackend) handleList(w http.ResponseWriter, r *http.Request) {
	rows := make([]model.Record, 0, len(b.data[r.URL.Path]))
	query := r.URL.Query()
	for _, rec := range b.data[r.URL.Path] {
		match := true
		for key, values := range query {
			if len(values) > 0 && rec.StringField(key) != values[0] {
				match = false
				break
			}
		}
		if match {
			rows = append(rows, rec)
		}
	}
	json.NewEncoder(w).Encode(rows)
}

func (b *MockBackend) handleRecord(w http.ResponseWriter, r *http.Request) {
	idx := strings.LastIndex(r.URL.Path, "/")
	route, id := r.URL.Path[:idx], r.URL.Path[idx+1:]
	rec, ok := b.data[route][id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "registro inexistente"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(rec)
	case http.MethodPatch:
		var patch model.Record
		json.NewDecoder(r.Body).Decode(&patch)
		for k, v := range patch {
			rec[k] = v
		}
		b.data[route][id] = rec
		json.NewEncoder(w).Encode(rec)
	case http.MethodDelete:
		delete(b.data[route], id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
