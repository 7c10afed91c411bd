package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ukydev/camperwash/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleUserInfoURL   = "https://openidconnect.googleapis.com/v1/userinfo"
	facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name,email"
)

var (
	// ErrNoEmail is returned when the provider profile carries no email address.
	ErrNoEmail = errors.New("provider did not return an email address")
	// ErrEmailNotVerified is returned when the provider requires a verified address and the profile has none.
	ErrEmailNotVerified = errors.New("provider email address is not verified")
)

// Profile is the identity returned by an OAuth provider
type Profile struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified *bool  `json:"email_verified"`
}

// Verified reports whether the provider asserted ownership of the email address.
// A missing claim counts as unverified.
func (p *Profile) Verified() bool {
	return p.EmailVerified != nil && *p.EmailVerified
}

// Provider is one OAuth 2 sign-in provider
type Provider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	// RequireVerifiedEmail rejects profiles without email_verified=true
	RequireVerifiedEmail bool
}

// AuthCodeURL returns the provider consent page URL for state
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state)
}

// Exchange trades the authorization code for a token and fetches the user profile.
func (p *Provider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo request: %w", p.Name, err)
	}
	resp, err := p.Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s userinfo: status %d: %s", p.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%s userinfo decode: %w", p.Name, err)
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Email == "" {
		return nil, ErrNoEmail
	}
	if p.RequireVerifiedEmail && !profile.Verified() {
		return nil, fmt.Errorf("%s userinfo: %w", p.Name, ErrEmailNotVerified)
	}
	return &profile, nil
}

// Providers indexes the enabled providers by name
type Providers map[string]*Provider

// NewProviders builds the providers that have client credentials configured.
func NewProviders(cfg config.OAuthConfig, baseURL string) Providers {
	providers := Providers{}
	callback := func(name string) string {
		return strings.TrimRight(baseURL, "/") + "/api/auth/" + name + "/callback"
	}

	if cfg.GoogleClientID != "" {
		providers["google"] = &Provider{
			Name: "google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  callback("google"),
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL:          googleUserInfoURL,
			RequireVerifiedEmail: true,
		}
	}
	if cfg.FacebookClientID != "" {
		providers["facebook"] = &Provider{
			Name: "facebook",
			Config: &oauth2.Config{
				ClientID:     cfg.FacebookClientID,
				ClientSecret: cfg.FacebookClientSecret,
				Endpoint:     endpoints.Facebook,
				RedirectURL:  callback("facebook"),
				Scopes:       []string{"email", "public_profile"},
			},
			UserInfoURL: facebookUserInfoURL,
		}
	}
	return providers
}
