package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// LoginPath is where unauthenticated page requests are redirected.
const LoginPath = "/login.html"

// maxLoginBody bounds the login request body.
const maxLoginBody = 4 << 10

// LoginRequest is the body of POST /login. Both fields may be omitted to
// probe an existing session.
type LoginRequest struct {
	Email    string `json:"email" validate:"email_shape"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// LoginHandler serves POST /login. A valid session cookie is accepted
// without a password; otherwise the password is checked against the
// allow-list and a new cookie is set.
func (g *Gate) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, loginResponse{Message: "Method " + r.Method + " Not Allowed"})
			return
		}

		if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
			id, err := g.Resume(cookie.Value)
			if err != nil {
				clearCookie(w, r)
				writeJSON(w, http.StatusUnauthorized, loginResponse{Message: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, loginResponse{Message: "Session valid", Email: id.Email})
			return
		}

		var req LoginRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxLoginBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Invalid JSON: " + err.Error()})
			return
		}
		if req.Email == "" && req.Password == "" {
			writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Not logged in"})
			return
		}
		if err := util.Validate.Struct(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Please enter a valid email address"})
			return
		}

		token, err := g.Login(req.Email, req.Password)
		if err != nil {
			var authErr *AuthError
			switch {
			case errors.As(err, &authErr):
				slog.Info("login rejected", "email", req.Email)
				writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Invalid password"})
			case errors.Is(err, ErrInvalidEmail):
				writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Please enter a valid email address"})
			default:
				slog.Error("failed to issue session", "error", err)
				writeJSON(w, http.StatusInternalServerError, loginResponse{Message: "Login failed"})
			}
			return
		}

		setCookie(w, r, token, int(SessionDuration.Seconds()))
		slog.Info("login successful", "email", req.Email)
		writeJSON(w, http.StatusOK, loginResponse{Message: "Login successful", Email: req.Email})
	}
}

// LogoutHandler serves POST /logout by clearing the session cookie.
func (g *Gate) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, loginResponse{Message: "Method " + r.Method + " Not Allowed"})
			return
		}
		clearCookie(w, r)
		writeJSON(w, http.StatusOK, loginResponse{Message: "Logged out"})
	}
}

type identityKey struct{}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Middleware returns middleware that requires a valid session cookie.
// Unauthenticated API and WebSocket requests get a 401; pages are
// redirected to the login page.
func (g *Gate) Middleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(CookieName); err == nil {
				if id, err := g.Resume(cookie.Value); err == nil {
					next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
					return
				}
			}

			if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
				writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Unauthorized"})
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusFound)
		}
	}
}

// setCookie sets or clears the session cookie.
func setCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, r *http.Request) {
	setCookie(w, r, "", -1)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
