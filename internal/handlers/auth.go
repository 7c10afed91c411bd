package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/auth"
	"github.com/ukydev/camperwash/internal/db"
	"github.com/ukydev/camperwash/internal/middleware"
	"github.com/ukydev/camperwash/internal/models"
)

const (
	stateCookieName = "camperwash_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthHandler handles OAuth sign-in and session requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	providers      auth.Providers
	isAdmin        func(email string) bool
	cookieSecure   bool
	logger         *logrus.Logger
}

// AuthOptions configures an AuthHandler
type AuthOptions struct {
	Providers auth.Providers
	// IsAdmin decides the role frozen into the session at sign-in.
	IsAdmin      func(email string) bool
	CookieSecure bool
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, opts AuthOptions, logger *logrus.Logger) *AuthHandler {
	isAdmin := opts.IsAdmin
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		providers:      opts.Providers,
		isAdmin:        isAdmin,
		cookieSecure:   opts.CookieSecure,
		logger:         logger,
	}
}

func (h *AuthHandler) provider(r *http.Request) (*auth.Provider, error) {
	p, ok := h.providers[r.PathValue("provider")]
	if !ok {
		return nil, apperr.NotFound("Fournisseur d'authentification inconnu")
	}
	return p, nil
}

// Login redirects to the provider consent page
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	state, err := h.authService.GenerateState()
	if err != nil {
		writeError(w, r, h.logger, apperr.Internal("failed to generate oauth state", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the authorization code flow, records the user and issues the session cookie
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.clearCookie(w, stateCookieName, "/api/auth")

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.WithFields(logrus.Fields{"provider": p.Name, "error": providerErr}).Warn("Sign-in refused by provider")
		writeError(w, r, h.logger, apperr.Unauthorized("Connexion refusée"))
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(query.Get("state"))) != 1 {
		writeError(w, r, h.logger, apperr.Unauthorized("État OAuth invalide"))
		return
	}

	profile, err := p.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.WithError(err).WithField("provider", p.Name).Warn("OAuth exchange failed")
		writeError(w, r, h.logger, apperr.Unauthorized("Échec de l'authentification"))
		return
	}

	// Facebook does not assert email ownership, so its users never get the admin role.
	role := models.RoleUser
	if profile.Verified() && h.isAdmin(profile.Email) {
		role = models.RoleAdmin
	}
	now := time.Now().UTC()
	user, err := h.userCollection.UpsertOAuthUser(r.Context(), models.User{
		Email:     profile.Email,
		Name:      profile.Name,
		Provider:  p.Name,
		Role:      role,
		LastLogin: &now,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		writeError(w, r, h.logger, apperr.Internal("failed to generate token", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.authService.TokenExpiry().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.WithFields(logrus.Fields{
		"provider": p.Name,
		"user_id":  user.ID,
		"role":     user.Role,
	}).Info("User signed in")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Session reports the current identity
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, models.SessionResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, models.SessionResponse{
		Authenticated: true,
		User: &models.SessionUser{
			Name:  claims.Name,
			Email: claims.Email,
			Role:  claims.Role,
		},
	})
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, auth.SessionCookieName, "/")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
