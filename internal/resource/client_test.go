package resource

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/config"
	"github.com/cargolog/console/model"
)

func testBackendConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			BackoffInitial: time.Millisecond,
			BackoffMax:     5 * time.Millisecond,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

func testRequestContext() *model.RequestContext {
	return &model.RequestContext{
		SubjectID: "user-1",
		CompanyID: "company-7",
		Token:     "tok-abc",
	}
}

func TestClient_GetSendsAuthAndCompanyHeaders(t *testing.T) {
	var gotAuth, gotCompany string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCompany = r.Header.Get("x-company")
		w.Write([]byte(`{"id":"1","name":"ACME"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	rec, err := c.Get(context.Background(), testRequestContext(), "/senders/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-abc")
	}
	if gotCompany != "company-7" {
		t.Errorf("x-company = %q, want %q", gotCompany, "company-7")
	}
	if rec.StringField("name") != "ACME" {
		t.Errorf("name = %q, want ACME", rec.StringField("name"))
	}
}

func TestClient_OmitsHeadersWhenValuesAbsent(t *testing.T) {
	var hasAuth, hasCompany bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, hasCompany = r.Header["X-Company"]
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	_, err := c.Get(context.Background(), &model.RequestContext{}, "/senders/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hasAuth {
		t.Error("Authorization header present, want omitted when token is empty")
	}
	if hasCompany {
		t.Error("x-company header present, want omitted when company is empty")
	}
}

func TestClient_ListEncodesFilterAsQuery(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	rows, err := c.List(context.Background(), testRequestContext(), "/documents", map[string]string{
		"status": "1",
		"month":  "08",
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if got := gotQuery["status"]; len(got) != 1 || got[0] != "1" {
		t.Errorf("query status = %v, want [1]", got)
	}
	if got := gotQuery["month"]; len(got) != 1 || got[0] != "08" {
		t.Errorf("query month = %v, want [08]", got)
	}
}

func TestClient_ErrorMessageExtractionOrder(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"detail wins", `{"detail":"Saldo insuficiente.","error":"x","message":"y"}`, "Saldo insuficiente."},
		{"error fallback", `{"error":"Registro duplicado.","message":"y"}`, "Registro duplicado."},
		{"message fallback", `{"message":"Campo inválido."}`, "Campo inválido."},
		{"generic fallback", `{"code":123}`, "Erro inesperado no servidor."},
		{"unparseable body", `<html>boom</html>`, "Erro inesperado no servidor."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := New(testBackendConfig(srv.URL), zap.NewNop())
			_, err := c.Create(context.Background(), testRequestContext(), "/senders", model.Record{"a": "b"})
			var ee *model.ErrorEnvelope
			if !errors.As(err, &ee) {
				t.Fatalf("error = %v, want *ErrorEnvelope", err)
			}
			if ee.Message != tc.want {
				t.Errorf("Message = %q, want %q", ee.Message, tc.want)
			}
			if ee.Code != model.ErrBadRequest {
				t.Errorf("Code = %q, want %q", ee.Code, model.ErrBadRequest)
			}
		})
	}
}

func TestClient_StatusCodeMapping(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, model.ErrUnauthorized},
		{http.StatusForbidden, model.ErrForbidden},
		{http.StatusNotFound, model.ErrNotFound},
		{http.StatusConflict, model.ErrConflict},
		{http.StatusInternalServerError, model.ErrBackendError},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"detail":"erro"}`))
		}))

		c := New(testBackendConfig(srv.URL), zap.NewNop())
		// POST so 5xx is not retried and the count stays deterministic.
		_, err := c.Create(context.Background(), testRequestContext(), "/senders", nil)
		srv.Close()

		var ee *model.ErrorEnvelope
		if !errors.As(err, &ee) {
			t.Fatalf("status %d: error = %v, want *ErrorEnvelope", tc.status, err)
		}
		if ee.Code != tc.want {
			t.Errorf("status %d: Code = %q, want %q", tc.status, ee.Code, tc.want)
		}
	}
}

func TestClient_RetriesIdempotentRequestsOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	rec, err := c.Get(context.Background(), testRequestContext(), "/senders/1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if rec.ID("id") != "1" {
		t.Errorf("id = %q, want 1", rec.ID("id"))
	}
}

func TestClient_DoesNotRetryNonIdempotentRequests(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	_, err := c.Create(context.Background(), testRequestContext(), "/senders", model.Record{"a": 1})
	if err == nil {
		t.Fatal("Create() error = nil, want envelope")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (POST must not retry)", attempts)
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"não encontrado"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	_, err := c.Get(context.Background(), testRequestContext(), "/senders/9")
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code != model.ErrNotFound {
		t.Fatalf("error = %v, want NOT_FOUND envelope", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", attempts)
	}
}

func TestClient_TimeoutMapsToBackendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testBackendConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	c := New(cfg, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, testRequestContext(), "/slow")
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *ErrorEnvelope", err)
	}
	if ee.Code != model.ErrBackendTimeout {
		t.Errorf("Code = %q, want %q", ee.Code, model.ErrBackendTimeout)
	}
}

func TestClient_OpenBreakerShortCircuits(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testBackendConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.FailureThreshold = 2
	c := New(cfg, zap.NewNop())

	ctx := context.Background()
	rctx := testRequestContext()
	c.Create(ctx, rctx, "/x", nil)
	c.Create(ctx, rctx, "/x", nil)
	if c.breaker.State() != BreakerOpen {
		t.Fatalf("breaker state = %v, want Open", c.breaker.State())
	}

	before := attempts
	_, err := c.Get(ctx, rctx, "/x")
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code != model.ErrBackendUnavailable {
		t.Fatalf("error = %v, want BACKEND_UNAVAILABLE envelope", err)
	}
	if attempts != before {
		t.Errorf("backend was called while breaker open (attempts %d → %d)", before, attempts)
	}
}

func TestClient_UpdateUsesPatch(t *testing.T) {
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(r.Body); err == nil {
			gotBody = buf.String()
		}
		w.Write([]byte(`{"id":"1","name":"Novo"}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	rec, err := c.Update(context.Background(), testRequestContext(), "/senders/1", map[string]any{"name": "Novo"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	if !strings.Contains(gotBody, `"name":"Novo"`) {
		t.Errorf("body = %q, want changed field only", gotBody)
	}
	if rec.StringField("name") != "Novo" {
		t.Errorf("name = %q, want Novo", rec.StringField("name"))
	}
}

func TestClient_DeleteReturnsNilOnNoContent(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	if err := c.Delete(context.Background(), testRequestContext(), "/senders/1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
}

func TestClient_UploadPostsMultipartPayload(t *testing.T) {
	var gotContentType string
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotLen = r.ContentLength
		w.Write([]byte(`{"imported":2}`))
	}))
	defer srv.Close()

	c := New(testBackendConfig(srv.URL), zap.NewNop())
	payload := strings.NewReader("--b\r\ncontent\r\n--b--\r\n")
	rec, err := c.Upload(context.Background(), testRequestContext(), "/documents/importall-xml",
		"multipart/form-data; boundary=b", payload)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Errorf("Content-Type = %q, want multipart/form-data", gotContentType)
	}
	if gotLen == 0 {
		t.Error("payload not transmitted")
	}
	if rec.StringField("imported") != "2" {
		t.Errorf("imported = %q, want 2", rec.StringField("imported"))
	}
}

func TestClient_ConnectionErrorMapsToUnavailable(t *testing.T) {
	cfg := testBackendConfig("http://127.0.0.1:1")
	cfg.Retry.MaxAttempts = 1
	c := New(cfg, zap.NewNop())

	_, err := c.Get(context.Background(), testRequestContext(), "/senders")
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *ErrorEnvelope", err)
	}
	if ee.Code != model.ErrBackendUnavailable {
		t.Errorf("Code = %q, want %q", ee.Code, model.ErrBackendUnavailable)
	}
}
