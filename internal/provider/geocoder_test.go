package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/addresolve/internal/address"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

const suggestionBody = `{"suggestions":[{"id":"fias-1","value":"г Москва, ул Ленина, д 5",
"data":{"country":"Россия","city":"Москва","street":"ул Ленина","house":"5","postal_code":"101000",
"geo_lat":"55.75","geo_lon":"37.61"},"overrides":{"city":"Москва (центр)"}}]}`

func newTestGeocoder(t *testing.T, url string) *Geocoder {
	t.Helper()
	g, err := NewGeocoder(GeocoderConfig{
		Endpoint:       url,
		APIKey:         "secret",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		MinQueryLength: 3,
		MaxQueryLength: 50,
		Languages:      []string{"ru"},
	})
	require.NoError(t, err)
	g.retry.InitialDelay = time.Millisecond
	g.retry.MaxDelay = 5 * time.Millisecond
	return g
}

func TestGeocoder_SearchAndNormalize(t *testing.T) {
	var got geocoderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "addresolve/"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(suggestionBody))
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{Language: "ru", RequestID: "req-1"})
	require.NoError(t, err)

	res, err := s.Search(context.Background(), "Москва Ленина 5")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "Москва Ленина 5", got.Query)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, "ru", got.Language)
	assert.Equal(t, map[string]string{"city": "Москва (центр)"}, res.Overrides)

	addrs := g.Normalize(res)
	require.Len(t, addrs, 1)
	a := addrs[0]
	assert.Equal(t, "fias-1", a.Key)
	assert.Equal(t, "г Москва, ул Ленина, д 5", a.Value)
	assert.Equal(t, "Москва", a.City)
	assert.Equal(t, "101000", a.PostalCode)
	assert.InDelta(t, 55.75, a.Latitude, 1e-9)
	assert.InDelta(t, 37.61, a.Longitude, 1e-9)
	assert.Equal(t, GeocoderName, a.Provider)
}

func TestGeocoder_OverridesFollowFirstValidSuggestion(t *testing.T) {
	// Given a response whose first suggestion is malformed but carries overrides
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":[
{"id":"","value":"","overrides":{"city":"WRONG"}},
{"id":"b","value":"г Москва, ул Ленина, д 5","data":{"city":"Москва"}}]}`))
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	// When the result is normalized and processed
	res, err := s.Search(context.Background(), "Москва Ленина 5")
	require.NoError(t, err)
	require.NotNil(t, res)
	addrs := g.Normalize(res)
	require.Len(t, addrs, 1)
	got, skipped := address.Process(addrs[0], res.Overrides, nil)

	// Then the dropped suggestion's overrides are not applied to "b"
	assert.Empty(t, skipped)
	assert.Empty(t, res.Overrides)
	assert.Equal(t, "b", got.Key)
	assert.Equal(t, "Москва", got.City)
	assert.Empty(t, got.Overridden)
}

func TestGeocoder_OnlyMalformedSuggestionsIsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":[{"id":"x","value":""}]}`))
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	res, err := s.Search(context.Background(), "Москва Ленина 5")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGeocoder_EmptySuggestionsIsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":[]}`))
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	res, err := s.Search(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGeocoder_RetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(suggestionBody))
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	res, err := s.Search(context.Background(), "Москва Ленина 5")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGeocoder_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad token", http.StatusForbidden)
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "Москва Ленина 5")
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeProviderFailed, rerrors.GetCode(err))
	assert.Contains(t, err.Error(), "bad token")
	assert.Equal(t, int32(1), hits.Load())
}

func TestGeocoder_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"suggestions":`))
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "Москва Ленина 5")
	assert.Equal(t, rerrors.ErrCodeMalformedResponse, rerrors.GetCode(err))
}

func TestGeocoder_CircuitOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestGeocoder(t, srv.URL)
	g.retry.MaxRetries = 0
	s, err := g.Prepare(context.Background(), Scope{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = s.Search(context.Background(), "Москва Ленина 5")
		require.Error(t, err)
		assert.Equal(t, rerrors.ErrCodeNetworkUnavailable, rerrors.GetCode(err))
	}
	assert.Equal(t, rerrors.StateOpen, g.Breaker().State())

	_, err = s.Search(context.Background(), "Москва Ленина 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load())
}

func TestGeocoder_IsEnabled(t *testing.T) {
	g := newTestGeocoder(t, "http://127.0.0.1:1")

	assert.True(t, g.IsEnabled("Москва", Scope{Language: "ru"}))
	assert.True(t, g.IsEnabled("Москва", Scope{}))
	assert.False(t, g.IsEnabled("ab", Scope{}))
	assert.False(t, g.IsEnabled("   ", Scope{}))
	assert.False(t, g.IsEnabled("Москва", Scope{Language: "de"}))

	long := make([]rune, 51)
	for i := range long {
		long[i] = 'ж'
	}
	assert.False(t, g.IsEnabled(string(long), Scope{}))
}

func TestNewGeocoder_RequiresEndpoint(t *testing.T) {
	_, err := NewGeocoder(GeocoderConfig{})
	assert.Equal(t, rerrors.ErrCodeConfigInvalid, rerrors.GetCode(err))
}

func TestGeocoder_NormalizeDerivesMissingKey(t *testing.T) {
	g := newTestGeocoder(t, "http://127.0.0.1:1")
	addrs := g.Normalize(&Result{Raw: []GeocoderSuggestion{
		{Value: "Main St 5"},
		{ID: "x"},
	}})
	require.Len(t, addrs, 1)
	assert.NotEmpty(t, addrs[0].Key)
	assert.Equal(t, "Main St 5", addrs[0].Value)
}
