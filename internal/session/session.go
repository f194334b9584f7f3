// Package session authenticates console users against the backend and
// keeps their credentials for the lifetime of the browser session. The
// token and the signed-in user always move together: signing out clears
// both atomically so no handler can observe a token without its owner.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cargolog/console/internal/config"
	"github.com/cargolog/console/model"
)

const defaultTokenTTL = 12 * time.Hour

// Credentials is the authenticated state of one console session.
type Credentials struct {
	Token     string
	SubjectID string
	Email     string
	Name      string
	CompanyID string
	ExpiresAt time.Time
}

// Expired reports whether the credentials are past their lifetime.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Authenticator performs the backend sign-in call.
type Authenticator interface {
	Create(ctx context.Context, rctx *model.RequestContext, route string, body any) (model.Record, error)
}

// Manager signs users in and out against the backend.
type Manager struct {
	backend Authenticator
	cfg     config.SessionConfig
	logger  *zap.Logger
}

// NewManager builds a Manager over the given backend client.
func NewManager(backend Authenticator, cfg config.SessionConfig, logger *zap.Logger) *Manager {
	if cfg.SignInRoute == "" {
		cfg.SignInRoute = "/auth/signin"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &Manager{backend: backend, cfg: cfg, logger: logger}
}

// SignIn exchanges email and password for backend credentials. The call
// runs unauthenticated: the client omits identity headers when the
// request context carries none.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Credentials{}, model.NewBadRequestError("Informe e-mail e senha.")
	}

	rec, err := m.backend.Create(ctx, &model.RequestContext{}, m.cfg.SignInRoute, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return Credentials{}, err
	}

	token := rec.StringField("token")
	if token == "" {
		token = rec.StringField("accessToken")
	}
	if token == "" {
		return Credentials{}, model.NewUnauthorizedError("Usuário ou senha inválidos.")
	}

	creds := Credentials{
		Token:     token,
		SubjectID: rec.StringField("userId"),
		Email:     email,
		Name:      rec.StringField("name"),
		CompanyID: rec.StringField("companyId"),
		ExpiresAt: m.expiryOf(token),
	}
	if creds.SubjectID == "" {
		creds.SubjectID = subjectOf(token)
	}
	m.logger.Info("user signed in",
		zap.String("subject_id", creds.SubjectID),
		zap.Time("expires_at", creds.ExpiresAt))
	return creds, nil
}

// expiryOf reads the exp claim from the token without verifying its
// signature. Verification belongs to the backend that issued it; the
// console only needs the lifetime to expire the session locally. When
// the token is opaque the configured TTL applies.
func (m *Manager) expiryOf(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(m.cfg.TokenTTL)
}

func subjectOf(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// Store keeps active sessions in memory keyed by an opaque session id
// handed to the browser as a cookie.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Credentials
	now      func() time.Time
}

// NewStore builds an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]Credentials),
		now:      time.Now,
	}
}

// Put registers the credentials and returns the new session id.
func (s *Store) Put(creds Credentials) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = creds
	s.mu.Unlock()
	return id
}

// Get returns the credentials for the session id. Expired sessions are
// removed on access and reported as absent.
func (s *Store) Get(id string) (Credentials, bool) {
	s.mu.RLock()
	creds, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Credentials{}, false
	}
	if creds.Expired(s.now()) {
		s.Delete(id)
		return Credentials{}, false
	}
	return creds, true
}

// Delete removes the session, clearing token and user together.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// SetCompany rebinds the session to another company. Every later backend
// call made through this session carries the new company scope.
func (s *Store) SetCompany(id, companyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.sessions[id]
	if !ok {
		return false
	}
	creds.CompanyID = companyID
	s.sessions[id] = creds
	return true
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
