package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret"

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(testSecret, []string{"alpha", "bravo"})
	require.NoError(t, err)
	return g
}

func postLogin(t *testing.T, g *Gate, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	g.LoginHandler()(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) loginResponse {
	t.Helper()
	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestLoginSetsCookieAndResumes(t *testing.T) {
	g := newTestGate(t)

	rec := postLogin(t, g, `{"email":"host@zuidwest.nl","password":"bravo"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 86400, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
	assert.False(t, cookie.Secure)

	// Replaying the cookie needs no password.
	rec = postLogin(t, g, ``, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeMessage(t, rec)
	assert.Equal(t, "host@zuidwest.nl", resp.Email)
	assert.NotEmpty(t, resp.Message)

	rec = postLogin(t, g, `{"email":"host@zuidwest.nl","password":"wrong"}`, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejections(t *testing.T) {
	g := newTestGate(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"email":"host@zuidwest.nl","password":"charlie"}`, http.StatusUnauthorized},
		{"empty password", `{"email":"host@zuidwest.nl","password":""}`, http.StatusUnauthorized},
		{"bad email", `{"email":"not-an-email","password":"alpha"}`, http.StatusBadRequest},
		{"email with space", `{"email":"a b@c.d","password":"alpha"}`, http.StatusBadRequest},
		{"empty body probe", ``, http.StatusUnauthorized},
		{"malformed json", `{"email":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLogin(t, g, tt.body, nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
			assert.NotEmpty(t, decodeMessage(t, rec).Message)
		})
	}
}

func TestLoginRejectsBadCookies(t *testing.T) {
	g := newTestGate(t)

	valid, err := g.Issue("host@zuidwest.nl")
	require.NoError(t, err)

	other, err := NewGate("another-secret", nil)
	require.NoError(t, err)
	foreign, err := other.Issue("host@zuidwest.nl")
	require.NoError(t, err)

	expiredGate := newTestGate(t)
	expiredGate.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := expiredGate.Issue("host@zuidwest.nl")
	require.NoError(t, err)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"email": "host@zuidwest.nl", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, value := range map[string]string{
		"tampered": valid[:len(valid)-2] + "xx",
		"foreign":  foreign,
		"expired":  expired,
		"unsigned": unsigned,
		"garbage":  "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			rec := postLogin(t, g, `{"email":"host@zuidwest.nl","password":"alpha"}`, &http.Cookie{Name: CookieName, Value: value})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			cleared := sessionCookie(t, rec)
			assert.Empty(t, cleared.Value)
			assert.Less(t, cleared.MaxAge, 0)
		})
	}
}

func TestLoginMethodNotAllowed(t *testing.T) {
	g := newTestGate(t)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		g.LoginHandler()(rec, httptest.NewRequest(method, "/login", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	}
}

func TestResume(t *testing.T) {
	g := newTestGate(t)
	token, err := g.Issue("host@zuidwest.nl")
	require.NoError(t, err)

	id, err := g.Resume(token)
	require.NoError(t, err)
	assert.Equal(t, "host@zuidwest.nl", id.Email)
	assert.WithinDuration(t, time.Now().Add(SessionDuration), id.ExpiresAt, 5*time.Second)

	g.now = func() time.Time { return time.Now().Add(SessionDuration + time.Minute) }
	_, err = g.Resume(token)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "session expired", authErr.Reason)
}

func TestGateLogin(t *testing.T) {
	g := newTestGate(t)

	_, err := g.Login("nope", "alpha")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = g.Login("host@zuidwest.nl", "zulu")
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)

	token, err := g.Login("host@zuidwest.nl", "alpha")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = NewGate("", nil)
	assert.Error(t, err)
}

func TestGateWithEmptyAllowListRejectsEveryPassword(t *testing.T) {
	g, err := NewGate(testSecret, []string{""})
	require.NoError(t, err)
	_, err = g.Login("host@zuidwest.nl", "")
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestMiddleware(t *testing.T) {
	g := newTestGate(t)
	token, err := g.Issue("host@zuidwest.nl")
	require.NoError(t, err)

	var seen string
	protected := g.Middleware()(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		seen = id.Email
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec := httptest.NewRecorder()
	protected(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "host@zuidwest.nl", seen)

	rec = httptest.NewRecorder()
	protected(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	protected(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	protected(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
}

func TestLogoutClearsCookie(t *testing.T) {
	g := newTestGate(t)

	rec := httptest.NewRecorder()
	g.LogoutHandler()(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, sessionCookie(t, rec).MaxAge, 0)

	rec = httptest.NewRecorder()
	g.LogoutHandler()(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
