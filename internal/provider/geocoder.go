package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/addresolve/internal/address"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
	"github.com/Aman-CERP/addresolve/pkg/version"
)

// GeocoderName is the registered name of the HTTP geocoder.
const GeocoderName = "geocoder"

// GeocoderConfig configures Geocoder.
type GeocoderConfig struct {
	Endpoint string
	APIKey   string
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// RatePerSecond limits outgoing requests; zero disables limiting.
	RatePerSecond  float64
	Burst          int
	MaxRetries     int
	Count          int
	MinQueryLength int
	MaxQueryLength int
	// Languages restricts the scope languages served; empty allows all.
	Languages []string

	// HTTPClient replaces the pooled default client.
	HTTPClient *http.Client
}

// Geocoder resolves addresses through a JSON suggestion endpoint:
//
//	POST {endpoint} {"query": "...", "count": 1, "language": "ru"}
//	-> {"suggestions": [{"id": "...", "value": "...", "data": {...}, "overrides": {...}}]}
type Geocoder struct {
	cfg     GeocoderConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *rerrors.CircuitBreaker
	retry   rerrors.RetryConfig
}

// NewGeocoder creates a geocoder provider.
func NewGeocoder(cfg GeocoderConfig) (*Geocoder, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, rerrors.ConfigError("geocoder endpoint is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	client := cfg.HTTPClient
	if client == nil {
		// per-attempt deadlines come from the request context
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	retry := rerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	return &Geocoder{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: rerrors.NewCircuitBreaker(GeocoderName, rerrors.WithMaxFailures(5), rerrors.WithResetTimeout(30*time.Second)),
		retry:   retry,
	}, nil
}

// Name implements Provider.
func (g *Geocoder) Name() string { return GeocoderName }

// IsEnabled rejects items outside the query length bounds and scopes whose
// language the endpoint does not serve.
func (g *Geocoder) IsEnabled(item string, scope Scope) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(item))
	if n == 0 || n < g.cfg.MinQueryLength {
		return false
	}
	if g.cfg.MaxQueryLength > 0 && n > g.cfg.MaxQueryLength {
		return false
	}
	if scope.Language == "" || len(g.cfg.Languages) == 0 {
		return true
	}
	for _, l := range g.cfg.Languages {
		if strings.EqualFold(l, scope.Language) {
			return true
		}
	}
	return false
}

// Prepare implements Provider.
func (g *Geocoder) Prepare(_ context.Context, scope Scope) (Searcher, error) {
	return &geocoderSearch{g: g, scope: scope}, nil
}

// Breaker exposes the circuit breaker state for diagnostics.
func (g *Geocoder) Breaker() *rerrors.CircuitBreaker {
	return g.breaker
}

type geocoderSearch struct {
	g     *Geocoder
	scope Scope
}

type geocoderRequest struct {
	Query    string `json:"query"`
	Count    int    `json:"count"`
	Language string `json:"language,omitempty"`
}

type geocoderResponse struct {
	Suggestions []GeocoderSuggestion `json:"suggestions"`
}

// GeocoderSuggestion is one candidate returned by the endpoint.
type GeocoderSuggestion struct {
	ID        string            `json:"id"`
	Value     string            `json:"value"`
	Data      GeocoderData      `json:"data"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// address converts the suggestion to a canonical record, deriving a key from
// the value when the endpoint sends no ID.
func (s GeocoderSuggestion) address() address.Address {
	key := s.ID
	if key == "" && s.Value != "" {
		key = address.DeriveKey(s.Value)
	}
	return address.Address{
		Key:        key,
		Value:      s.Value,
		Country:    s.Data.Country,
		Region:     s.Data.Region,
		Area:       s.Data.Area,
		City:       s.Data.City,
		Settlement: s.Data.Settlement,
		Street:     s.Data.Street,
		House:      s.Data.House,
		Block:      s.Data.Block,
		PostalCode: s.Data.PostalCode,
		Latitude:   parseCoord(s.Data.GeoLat),
		Longitude:  parseCoord(s.Data.GeoLon),
		Provider:   GeocoderName,
	}
}

// GeocoderData holds the structured fields of a suggestion.
type GeocoderData struct {
	Country    string `json:"country"`
	Region     string `json:"region"`
	Area       string `json:"area"`
	City       string `json:"city"`
	Settlement string `json:"settlement"`
	Street     string `json:"street"`
	House      string `json:"house"`
	Block      string `json:"block"`
	PostalCode string `json:"postal_code"`
	GeoLat     string `json:"geo_lat"`
	GeoLon     string `json:"geo_lon"`
}

func networkFailure(err error) bool {
	return rerrors.GetCategory(err) == rerrors.CategoryNetwork
}

// Search implements Searcher with rate limiting, retries on network
// failures, and a circuit breaker shared by all batches.
func (s *geocoderSearch) Search(ctx context.Context, query string) (*Result, error) {
	suggestions, err := rerrors.RetryWithResult(ctx, s.g.retry, func() ([]GeocoderSuggestion, error) {
		return rerrors.CircuitExecute(s.g.breaker, func() ([]GeocoderSuggestion, error) {
			return s.do(ctx, query)
		}, networkFailure)
	})
	if err != nil {
		if errors.Is(err, rerrors.ErrCircuitOpen) {
			return nil, rerrors.ProviderError(GeocoderName, "geocoder circuit open, endpoint failing", err)
		}
		return nil, err
	}
	// malformed suggestions are dropped here so Overrides always belong to
	// the first record Normalize returns
	valid := suggestions[:0]
	for _, sg := range suggestions {
		if sg.address().Validate() == nil {
			valid = append(valid, sg)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return &Result{
		Provider:  GeocoderName,
		Raw:       valid,
		Overrides: valid[0].Overrides,
	}, nil
}

func (s *geocoderSearch) do(ctx context.Context, query string) ([]GeocoderSuggestion, error) {
	if err := s.g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(geocoderRequest{Query: query, Count: s.g.cfg.Count, Language: s.scope.Language})
	if err != nil {
		return nil, rerrors.InternalError("encode geocoder request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, rerrors.ConfigError("build geocoder request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if s.g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Token "+s.g.cfg.APIKey)
	}
	if s.scope.RequestID != "" {
		req.Header.Set("X-Request-ID", s.scope.RequestID)
	}

	start := time.Now()
	resp, err := s.g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rerrors.NetworkError("geocoder request failed", err).WithDetail("provider", GeocoderName)
	}
	defer resp.Body.Close()

	slog.Debug("geocoder_response",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, rerrors.New(rerrors.ErrCodeRateLimited, "geocoder rate limited", nil)
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, rerrors.New(rerrors.ErrCodeNetworkUnavailable,
			fmt.Sprintf("geocoder returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, rerrors.ProviderError(GeocoderName,
			fmt.Sprintf("geocoder returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var out geocoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeMalformedResponse, "decode geocoder response", err)
	}
	return out.Suggestions, nil
}

// Normalize implements Provider.
func (g *Geocoder) Normalize(res *Result) []address.Address {
	if res == nil {
		return nil
	}
	suggestions, ok := res.Raw.([]GeocoderSuggestion)
	if !ok {
		return nil
	}

	out := make([]address.Address, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.address())
	}
	return address.Filter(out)
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
