package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/utils"
)

const (
	csrfCookieName = "welfare_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfMaxAge     = 3600
)

// CSRF issues and checks double-submit tokens. A token is a random nonce plus its
// HMAC under the server key, so only tokens this server minted are accepted.
type CSRF struct {
	authKey      []byte
	secureCookie bool
}

func NewCSRF(authKey []byte, secureCookie bool) *CSRF {
	return &CSRF{authKey: authKey, secureCookie: secureCookie}
}

func (c *CSRF) sign(nonce string) string {
	mac := hmac.New(sha256.New, c.authKey)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *CSRF) newToken() (string, error) {
	nonce, err := security.RandomToken(32)
	if err != nil {
		return "", err
	}
	return nonce + "." + c.sign(nonce), nil
}

func (c *CSRF) valid(token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(c.sign(nonce)))
}

// GetCSRFToken sets the CSRF cookie and returns the same token in the header and body.
func (c *CSRF) GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := c.newToken()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to generate CSRF token", "error", err)
		utils.SendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   c.secureCookie,
		MaxAge:   csrfMaxAge,
	})
	w.Header().Set(csrfHeaderName, token)
	utils.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// Middleware rejects state-changing requests whose header token does not match the cookie.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(csrfHeaderName)
		cookie, err := r.Cookie(csrfCookieName)
		if headerToken != "" && err == nil &&
			subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookie.Value)) == 1 &&
			c.valid(headerToken) {
			next.ServeHTTP(w, r)
			return
		}

		logger.FromContext(r.Context()).Warn("CSRF validation failed",
			"hasHeader", headerToken != "", "hasCookie", err == nil, "origin", r.Header.Get("Origin"))
		utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
	})
}
