package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cargolog/console/model"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CompanyID string    `json:"companyId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleSignIn exchanges email and password for a console session. The
// session id travels as an HttpOnly cookie; the token itself never
// reaches the browser.
func (h *handlers) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	creds, err := h.deps.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	id := h.deps.Sessions.Put(creds)
	http.SetCookie(w, h.sessionCookie(id, creds.ExpiresAt))

	WriteJSON(w, http.StatusOK, signInResponse{
		Name:      creds.Name,
		Email:     creds.Email,
		CompanyID: creds.CompanyID,
		ExpiresAt: creds.ExpiresAt,
	})
}

// handleSignOut drops the session and expires the cookie. Token and user
// leave together. Signing out an already-dead session is not an error.
func (h *handlers) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.deps.Config.Session.CookieName); err == nil {
		h.deps.Sessions.Delete(cookie.Value)
		h.deps.Logger.Info("user signed out", zap.String("correlation_id", CorrelationIDFrom(r.Context())))
	}
	expired := h.sessionCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	WriteJSON(w, http.StatusNoContent, nil)
}

type companySwitchRequest struct {
	CompanyID string `json:"companyId"`
}

// handleCompanySwitch rebinds the session to another company. Lookup
// caches are scoped per company, so no invalidation is needed here.
func (h *handlers) handleCompanySwitch(w http.ResponseWriter, r *http.Request) {
	var req companySwitchRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.CompanyID == "" {
		WriteBadRequest(w, "Informe a empresa.")
		return
	}

	id := SessionIDFrom(r.Context())
	if id == "" || !h.deps.Sessions.SetCompany(id, req.CompanyID) {
		WriteError(w, model.NewUnauthorizedError("Sessão expirada. Autentique-se novamente."))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"companyId": req.CompanyID})
}

func (h *handlers) sessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.deps.Config.Session.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.deps.Config.Session.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
