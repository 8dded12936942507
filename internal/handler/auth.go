package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/qngenius/qngenius/internal/i18n"
	"github.com/qngenius/qngenius/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"

	maxFailedLogins = 5
	loginWindow     = 15 * time.Minute
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter) (string, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// csrfMiddleware implements double-submit tokens: unsafe requests must echo
// the csrf_token cookie in the X-CSRF-Token header.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(csrfCookieName)
		hasCookie := err == nil && cookie.Value != ""

		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			token := ""
			if hasCookie {
				token = cookie.Value
			} else if token, err = h.setCSRFCookie(w); err != nil {
				internalError(w, r, "failed to generate CSRF token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(model.ContextWithCSRFToken(r.Context(), token)))
			return
		}

		if !hasCookie {
			slog.Warn("CSRF cookie missing", "path", r.URL.Path)
			writeError(w, r, http.StatusForbidden, "CSRFMismatch")
			return
		}
		sent := r.Header.Get(csrfHeaderName)
		if len(sent) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(sent), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch", "path", r.URL.Path)
			writeError(w, r, http.StatusForbidden, "CSRFMismatch")
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithCSRFToken(r.Context(), cookie.Value)))
	})
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		authSess, err := h.store.GetAuthSession(cookie.Value)
		if err != nil {
			internalError(w, r, "failed to get auth session", err)
			return
		}
		if authSess == nil {
			writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil {
			internalError(w, r, "failed to get user", err)
			return
		}
		if user == nil || !user.Active {
			writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission returns middleware that checks the user's role grants p.
func requirePermission(p model.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeError(w, r, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if !user.Can(p) {
				slog.Warn("permission denied", "user", user.Username, "permission", p)
				writeError(w, r, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	User      *model.User `json:"user"`
	CSRFToken string      `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) || !h.validateBody(w, r, &req) {
		return
	}

	failed, err := h.store.FailedLoginsSince(req.Username, time.Now().Add(-loginWindow))
	if err != nil {
		internalError(w, r, "failed to count login attempts", err)
		return
	}
	if failed >= maxFailedLogins {
		slog.Warn("login throttled", "username", req.Username, "remote", r.RemoteAddr)
		writeErrorData(w, r, http.StatusTooManyRequests, "TooManyAttempts",
			map[string]any{"Minutes": strconv.Itoa(int(loginWindow.Minutes()))})
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		internalError(w, r, "failed to get user", err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		var uid int64
		if user != nil {
			uid = user.ID
		}
		h.recordLogin(uid, req.Username, r, false)
		writeError(w, r, http.StatusUnauthorized, "InvalidCredentials")
		return
	}
	if !user.Active {
		h.recordLogin(user.ID, req.Username, r, false)
		writeError(w, r, http.StatusForbidden, "AccountDisabled")
		return
	}

	token, err := h.store.CreateAuthSession(user.ID, h.config.SessionTTL)
	if err != nil {
		internalError(w, r, "failed to create auth session", err)
		return
	}
	h.recordLogin(user.ID, req.Username, r, true)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		MaxAge:   int(h.config.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	csrf, err := h.setCSRFCookie(w)
	if err != nil {
		internalError(w, r, "failed to generate CSRF token", err)
		return
	}
	slog.Info("user logged in", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, loginResponse{User: user, CSRFToken: csrf})
}

func (h *Handler) recordLogin(userID int64, username string, r *http.Request, success bool) {
	if err := h.store.RecordLogin(userID, username, r.RemoteAddr, success); err != nil {
		slog.Error("failed to record login", "username", username, "error", err)
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}

	for _, name := range []string{sessionCookieName, csrfCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.cookiePath(),
			MaxAge:   -1,
			HttpOnly: name == sessionCookieName,
			Secure:   h.config.SecureCookies,
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": appI18n.T(r.Context(), "LoggedOut")})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, struct {
		*model.User
		CSRFToken string `json:"csrf_token"`
	}{user, model.CSRFTokenFromContext(r.Context())})
}
