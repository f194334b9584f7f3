package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/config"
	"github.com/cargolog/console/internal/dashboard"
	"github.com/cargolog/console/internal/entity"
	"github.com/cargolog/console/internal/listing"
	"github.com/cargolog/console/internal/observability"
	"github.com/cargolog/console/internal/resource"
	"github.com/cargolog/console/internal/search"
	"github.com/cargolog/console/internal/session"
	"github.com/cargolog/console/model"
)

// backendStub is an in-memory stand-in for the upstream domain API. It
// records every call so tests can assert on traffic, not just responses.
type backendStub struct {
	mu      sync.Mutex
	records map[string]map[string]model.Record // collection route → id → record
	nextID  int
	calls   []string
}

func newBackendStub() *backendStub {
	return &backendStub{
		records: map[string]map[string]model.Record{},
		nextID:  100,
	}
}

func (b *backendStub) ensure(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.records[route] == nil {
		b.records[route] = map[string]model.Record{}
	}
}

func (b *backendStub) put(route, id string, rec model.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.records[route] == nil {
		b.records[route] = map[string]model.Record{}
	}
	b.records[route][id] = rec
}

func (b *backendStub) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/sessions":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Usuário ou senha inválidos."})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"token":     "tok-backend",
			"userId":    "u-1",
			"companyId": "c-1",
			"name":      "Ana",
		})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/importall-xml"):
		json.NewEncoder(w).Encode(map[string]any{"imported": 2})

	case r.Method == http.MethodPost:
		var rec model.Record
		json.NewDecoder(r.Body).Decode(&rec)
		b.nextID++
		id := "r" + strconv.Itoa(b.nextID)
		rec["id"] = id
		if b.records[r.URL.Path] == nil {
			b.records[r.URL.Path] = map[string]model.Record{}
		}
		b.records[r.URL.Path][id] = rec
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rec)

	case r.Method == http.MethodGet && b.records[r.URL.Path] != nil:
		collection := b.records[r.URL.Path]
		filtered := make([]model.Record, 0, len(collection))
		query := r.URL.Query()
		for _, rec := range collection {
			match := true
			for key, values := range query {
				if len(values) > 0 && rec.StringField(key) != values[0] {
					match = false
					break
				}
			}
			if match {
				filtered = append(filtered, rec)
			}
		}
		json.NewEncoder(w).Encode(filtered)

	default:
		route, id := splitRecordPath(r.URL.Path)
		collection := b.records[route]
		rec, ok := collection[id]
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
			collection[id] = rec
			json.NewEncoder(w).Encode(rec)
		case http.MethodDelete:
			delete(collection, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func splitRecordPath(path string) (route, id string) {
	idx := strings.LastIndex(path, "/")
	return path[:idx], path[idx+1:]
}

func testDefinitions() []model.EntityDefinition {
	return []model.EntityDefinition{
		{
			Entity:      "documents",
			Title:       "Documentos",
			BaseRoute:   "/documents",
			StatusField: "status",
			Fields: []model.FieldDefinition{
				{Field: "number", Label: "Número", Required: true, Pad: 6},
				{Field: "name", Label: "Nome"},
				{Field: "code", Label: "Código", InsertOnly: true},
				{Field: "status", Label: "Situação", ReadOnly: true},
			},
			List: model.ListDefinition{
				Columns: []model.ColumnDefinition{
					{Field: "number", Title: "Número"},
					{Field: "status", Title: "Situação", Legend: true},
				},
				Filters: []string{"number", "nfekey", "status"},
				Legends: map[string]string{"pending": "text-warning", "approved": "text-success"},
			},
			Actions: []model.ActionDefinition{
				{
					Mode:  "approved",
					Label: "Aprovar",
					Guard: model.GuardDefinition{Equals: []string{"pending"}},
					Sets:  map[string]string{"status": "approved"},
				},
			},
			Import: &model.ImportDefinition{
				Route: "importall-xml",
				Fields: []model.FieldDefinition{
					{Field: "month", Label: "Mês", Required: true},
					{Field: "year", Label: "Ano", Required: true},
				},
			},
			Tracking: &model.TrackingDefinition{Keys: []string{"nfekey", "number"}},
		},
		{
			Entity:    "companies",
			Title:     "Empresas",
			BaseRoute: "/companies",
			Fields: []model.FieldDefinition{
				{Field: "name", Label: "Nome", Required: true},
			},
			List: model.ListDefinition{
				Columns: []model.ColumnDefinition{{Field: "name", Title: "Nome"}},
			},
			Stages: &model.StagesDefinition{
				Field:          "occurrences",
				ReferenceField: "occurrenceId",
				ChildFields:    []string{"occurrenceId", "notes"},
			},
		},
	}
}

// harness wires a full router over the backend stub.
type harness struct {
	router   http.Handler
	backend  *backendStub
	sessions *session.Store
	registry *entity.Registry
	cfg      *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := newBackendStub()
	backend.ensure("/documents")
	backend.ensure("/companies")
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = server.URL
	cfg.Backend.Retry.MaxAttempts = 1
	cfg.Server.CORS.AllowedOrigins = []string{"https://console.cargolog.com.br"}
	cfg.Observability.Metrics.Enabled = false
	cfg.Observability.Tracing.Enabled = false

	logger := zap.NewNop()
	client := resource.New(cfg.Backend, logger)
	registry := entity.NewRegistry(testDefinitions())
	provider := listing.NewProvider(client, logger)
	sessions := session.NewStore()

	deps := Dependencies{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Backend:   client,
		Auth:      session.NewManager(client, cfg.Session, logger),
		Sessions:  sessions,
		Listing:   provider,
		Lookups:   search.NewLookupProvider(registry, client, cfg.Lookup.TTL, cfg.Lookup.MaxEntries),
		Tracker:   search.NewTracker(registry, client, logger),
		Dashboard: dashboard.NewAggregator(client, logger),
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		},
	}

	return &harness{
		router:   NewRouter(deps),
		backend:  backend,
		sessions: sessions,
		registry: registry,
		cfg:      cfg,
	}
}

// do issues an authenticated request carrying a bearer token and company.
func (h *harness) do(method, target string, body *strings.Reader) *httptest.ResponseRecorder {
	if body == nil {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer tok-backend")
	req.Header.Set("x-company", "c-1")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, w.Body.String())
	}
}

func TestRouter_HealthAndReady(t *testing.T) {
	h := newHarness(t)

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest("GET", "/ui/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest("GET", "/ui/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", w.Code)
	}
}

func TestRouter_AuthenticatedRoutesRequireCredentials(t *testing.T) {
	h := newHarness(t)

	for _, target := range []string{
		"/ui/entities",
		"/ui/entities/documents/rows",
		"/ui/entities/documents/records/1",
		"/ui/lookups/companies",
		"/ui/dashboard/documents",
	} {
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without credentials = %d, want 401", target, w.Code)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("OPTIONS", "/ui/entities", nil)
	req.Header.Set("Origin", "https://console.cargolog.com.br")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://console.cargolog.com.br" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRouter_CorrelationIDEchoed(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("GET", "/ui/health", nil)
	req.Header.Set("X-Correlation-Id", "corr-42")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-Id"); got != "corr-42" {
		t.Errorf("X-Correlation-Id = %q, want corr-42", got)
	}

	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest("GET", "/ui/health", nil))
	if w.Header().Get("X-Correlation-Id") == "" {
		t.Error("expected a generated correlation id")
	}
}

func TestSignIn_SetsCookieAndSession(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("POST", "/ui/signin",
		strings.NewReader(`{"email":"ana@cargolog.com.br","password":"secret"}`))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("signin status = %d: %s", w.Code, w.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == h.cfg.Session.CookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("session cookie not set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if h.sessions.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", h.sessions.Len())
	}

	// The cookie alone authenticates follow-up requests.
	follow := httptest.NewRequest("GET", "/ui/entities", nil)
	follow.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, follow)
	if w.Code != http.StatusOK {
		t.Fatalf("cookie-authenticated request = %d: %s", w.Code, w.Body.String())
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("POST", "/ui/signin",
		strings.NewReader(`{"email":"ana@cargolog.com.br","password":"wrong"}`))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	decodeJSON(t, w, &body)
	if body.Error.Message != "Usuário ou senha inválidos." {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestSignOut_ClearsSession(t *testing.T) {
	h := newHarness(t)
	id := h.sessions.Put(session.Credentials{Token: "tok-backend", SubjectID: "u-1"})

	req := httptest.NewRequest("POST", "/ui/signout", nil)
	req.AddCookie(&http.Cookie{Name: h.cfg.Session.CookieName, Value: id})
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if h.sessions.Len() != 0 {
		t.Error("session not removed")
	}
	if _, ok := h.sessions.Get(id); ok {
		t.Error("token still resolvable after sign-out")
	}
}

func TestCompanySwitch_RebindsSession(t *testing.T) {
	h := newHarness(t)
	id := h.sessions.Put(session.Credentials{Token: "tok-backend", CompanyID: "c-1"})

	req := httptest.NewRequest("POST", "/ui/company", strings.NewReader(`{"companyId":"c-2"}`))
	req.AddCookie(&http.Cookie{Name: h.cfg.Session.CookieName, Value: id})
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	creds, _ := h.sessions.Get(id)
	if creds.CompanyID != "c-2" {
		t.Errorf("CompanyID = %q, want c-2", creds.CompanyID)
	}
}

func TestCompanySwitch_BearerOnlyRequestRejected(t *testing.T) {
	h := newHarness(t)

	w := h.do("POST", "/ui/company", strings.NewReader(`{"companyId":"c-2"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (no store-backed session)", w.Code)
	}
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.NewBadRequestError("x"), http.StatusBadRequest},
		{model.NewValidationError(nil), http.StatusUnprocessableEntity},
		{model.NewInvalidTransitionError("x"), http.StatusConflict},
		{model.NewPreconditionError("x"), http.StatusPreconditionFailed},
		{model.NewBackendUnavailableError(), http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(w, tc.err)
		if w.Code != tc.want {
			t.Errorf("WriteError(%v) = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}
