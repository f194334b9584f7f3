package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/cargolog/console/internal/transport"
)

// Harness runs the console over a mock backend, with the repository's real
// definition files loaded and validated.
type Harness struct {
	T        *testing.T
	Backend  *MockBackend
	Registry *entity.Registry
	Router   http.Handler
	Config   *config.Config
}

// NewHarness loads definitions from the repository's definitions directory
// and wires the full dependency graph, exactly as cmd/console does.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	backend := NewMockBackend()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = server.URL
	cfg.Backend.Retry.MaxAttempts = 1
	cfg.Observability.Metrics.Enabled = false
	cfg.Observability.Tracing.Enabled = false

	defs, err := entity.NewLoader().LoadDir("../../definitions")
	if err != nil {
		t.Fatalf("loading definitions: %v", err)
	}
	if verrs := entity.NewValidator().Validate(defs); len(verrs) > 0 {
		t.Fatalf("definition validation errors: %v", verrs)
	}
	registry := entity.NewRegistry(defs)

	for _, def := range registry.All() {
		backend.EnsureCollection(def.BaseRoute)
	}

	logger := zap.NewNop()
	client := resource.New(cfg.Backend, logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Backend:   client,
		Auth:      session.NewManager(client, cfg.Session, logger),
		Sessions:  session.NewStore(),
		Listing:   listing.NewProvider(client, logger),
		Lookups:   search.NewLookupProvider(registry, client, cfg.Lookup.TTL, cfg.Lookup.MaxEntries),
		Tracker:   search.NewTracker(registry, client, logger),
		Dashboard: dashboard.NewAggregator(client, logger),
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		},
	})

	return &Harness{T: t, Backend: backend, Registry: registry, Router: router, Config: cfg}
}

// Do issues an authenticated JSON request against the console.
func (h *Harness) Do(method, target string, body any) *httptest.ResponseRecorder {
	h.T.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer tok-mock")
	req.Header.Set("x-company", "c-1")
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.Router.ServeHTTP(w, req)
	return w
}

// Decode parses a recorded JSON response body.
func (h *Harness) Decode(w *httptest.ResponseRecorder, dst any) {
	h.T.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		h.T.Fatalf("decoding response: %v (body %q)", err, w.Body.String())
	}
}
