package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/cache"
)

const (
	geoapifyBaseURL    = "https://api.geoapify.com"
	autocompletePath   = "/v1/geocode/autocomplete"
	defaultCacheTTL    = 30 * 24 * time.Hour
	defaultHTTPTimeout = 8 * time.Second
	defaultLimit       = 5
	maxLimit           = 20
)

// Candidate is one address suggestion
type Candidate struct {
	Formatted string  `json:"formatted"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Provider suggests addresses for a partial query
type Provider interface {
	Autocomplete(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// GeoapifyProvider implements Provider with the Geoapify autocomplete API.
type GeoapifyProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      cache.Provider
	logger     *logrus.Logger
}

// NewGeoapifyProvider creates a provider. baseURL and httpClient may be empty/nil (overridden in tests).
// cache may be nil to disable caching.
func NewGeoapifyProvider(apiKey, baseURL string, httpClient *http.Client, c cache.Provider, logger *logrus.Logger) *GeoapifyProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = geoapifyBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GeoapifyProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      c,
		logger:     logger,
	}
}

type autocompleteResponse struct {
	Results []Candidate `json:"results"`
}

// Autocomplete returns address candidates. Cache failures are logged and never fail the lookup.
func (g *GeoapifyProvider) Autocomplete(ctx context.Context, query string, limit int) ([]Candidate, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, apperr.Validation("le texte de recherche est requis",
			apperr.FieldError{Field: "text", Message: "required"})
	}
	if g.apiKey == "" {
		return nil, apperr.Unavailable("geocoding is not configured")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	cacheKey := fmt.Sprintf("geo:v1:autocomplete:%d:%s", limit, hashKey(strings.ToLower(trimmed)))
	if g.cache != nil {
		if cached, err := g.cache.Get(ctx, cacheKey); err == nil {
			var candidates []Candidate
			if err := json.Unmarshal(cached, &candidates); err == nil {
				return candidates, nil
			}
		}
	}

	candidates, err := g.fetch(ctx, trimmed, limit)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if payload, err := json.Marshal(candidates); err == nil {
			if err := g.cache.Set(ctx, cacheKey, payload, defaultCacheTTL); err != nil {
				g.logger.WithError(err).Warn("failed to cache geocoding result")
			}
		}
	}
	return candidates, nil
}

func (g *GeoapifyProvider) fetch(ctx context.Context, text string, limit int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("lang", "fr")
	params.Set("apiKey", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+autocompletePath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperr.Internal("failed to build geocoding request", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transport("geocoding request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Transport("geocoding request failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload autocompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.Transport("invalid geocoding response", err)
	}
	if payload.Results == nil {
		payload.Results = []Candidate{}
	}
	return payload.Results, nil
}

func hashKey(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:])
}
