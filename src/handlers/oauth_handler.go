package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/utils"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateCookie  = "welfare_oauth_state"
)

// OAuthHandler signs members in with Google.
type OAuthHandler struct {
	users       *UserHandler
	oauthConfig *oauth2.Config
	frontendURL string
}

// NewOAuthHandler returns nil when Google login is not configured.
func NewOAuthHandler(cfg *config.AppConfig, users *UserHandler) *OAuthHandler {
	if !cfg.GoogleOAuthEnabled() {
		return nil
	}
	return &OAuthHandler{
		users: users,
		oauthConfig: &oauth2.Config{
			RedirectURL:  cfg.GoogleRedirectURL,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		},
		frontendURL: cfg.FrontendBaseURL,
	}
}

func (h *OAuthHandler) signinError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, fmt.Sprintf("%s/signin?error=%s", h.frontendURL, url.QueryEscape(code)), http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := security.RandomToken(24)
	if err != nil {
		utils.SendJSONError(w, "Failed to start Google login", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || r.FormValue("state") != cookie.Value {
		log.Warn("Invalid OAuth state from Google callback")
		h.signinError(w, r, "invalid_state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/auth/google", MaxAge: -1})

	token, err := h.oauthConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		log.Error("Failed to exchange code for token", "error", err)
		h.signinError(w, r, "token_exchange_failed")
		return
	}

	resp, err := h.oauthConfig.Client(r.Context(), token).Get(googleUserInfoURL)
	if err != nil {
		log.Error("Failed to get user info from Google", "error", err)
		h.signinError(w, r, "userinfo_failed")
		return
	}
	defer resp.Body.Close()

	var googleUser struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Verified bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		log.Error("Failed to decode Google user info", "error", err)
		h.signinError(w, r, "userinfo_parse_failed")
		return
	}
	if !googleUser.Verified {
		h.signinError(w, r, "email_not_verified_by_google")
		return
	}

	result, err := h.users.accounts.LoginWithGoogle(r.Context(), googleUser.Email, googleUser.Name, sessionMeta(r))
	if err != nil {
		log.Warn("Google login refused", "error", err)
		h.signinError(w, r, "login_failed")
		return
	}

	// Tokens travel in the fragment so they never reach server logs.
	fragment := url.Values{}
	fragment.Set("access_token", result.AccessToken)
	fragment.Set("refresh_token", result.RefreshToken)
	http.Redirect(w, r, fmt.Sprintf("%s/auth/google/callback#%s", h.frontendURL, fragment.Encode()), http.StatusTemporaryRedirect)
}
