package mcp

import (
	"time"

	"github.com/Aman-CERP/addresolve/internal/address"
	"github.com/Aman-CERP/addresolve/internal/provider"
	"github.com/Aman-CERP/addresolve/internal/resolve"
	"github.com/Aman-CERP/addresolve/internal/telemetry"
)

// MaxBatchItems caps the number of items a single resolve call may carry.
const MaxBatchItems = 1000

// ResolveInput defines the input schema for the resolve_addresses tool.
type ResolveInput struct {
	Items       []string `json:"items" jsonschema:"raw address strings to resolve, duplicates are resolved once"`
	Strategy    string   `json:"strategy,omitempty" jsonschema:"batch strategy: per-item or per-provider, default from config"`
	ExtractUnit *bool    `json:"extract_unit,omitempty" jsonschema:"split flat/office/parking suffixes off before searching, default from config"`
	Tenant      string   `json:"tenant,omitempty" jsonschema:"tenant whose stored addresses are searched first"`
	Language    string   `json:"language,omitempty" jsonschema:"address language passed to providers, e.g. ru"`
}

// ResolveOutput defines the output schema for the resolve_addresses tool.
type ResolveOutput struct {
	Addresses map[string]address.Address `json:"addresses" jsonschema:"resolved addresses keyed by address key"`
	Items     map[string]ItemOutput      `json:"items" jsonschema:"outcome for every distinct input item"`
	Counts    map[string]int             `json:"counts" jsonschema:"number of items per outcome"`
}

// ItemOutput is the outcome of one item. Exactly one of Error or AddressKey is set.
type ItemOutput struct {
	Error      string `json:"error,omitempty" jsonschema:"NOT_FOUND, NO_PROVIDERS or PROVIDER_ERROR"`
	Message    string `json:"message,omitempty" jsonschema:"provider error detail"`
	AddressKey string `json:"address_key,omitempty" jsonschema:"key into addresses"`
	Provider   string `json:"provider,omitempty" jsonschema:"provider that produced the address"`
	UnitType   string `json:"unit_type,omitempty" jsonschema:"extracted unit type"`
	UnitName   string `json:"unit_name,omitempty" jsonschema:"extracted unit name"`
}

// ParseInput defines the input schema for the parse_address tool.
type ParseInput struct {
	Raw      string `json:"raw" jsonschema:"raw address string, e.g. 'ул. Ленина, д. 5, кв. 12'"`
	Language string `json:"language,omitempty" jsonschema:"unit keyword dictionary: ru or en, default from config"`
}

// ParseOutput defines the output schema for the parse_address tool.
type ParseOutput struct {
	Address        string `json:"address" jsonschema:"house part used for searching"`
	UnitType       string `json:"unit_type,omitempty" jsonschema:"flat, parking, commercial, warehouse or apartment"`
	UnitName       string `json:"unit_name,omitempty" jsonschema:"unit name as written"`
	NormalizedName string `json:"normalized_name,omitempty" jsonschema:"comparison-safe slug of the unit name"`
	HasUnit        bool   `json:"has_unit" jsonschema:"true when both unit type and name were found"`
}

// StatsInput defines the input schema for the resolver_stats tool (no parameters).
type StatsInput struct{}

// StatsOutput defines the output schema for the resolver_stats tool.
type StatsOutput struct {
	Providers       []string               `json:"providers" jsonschema:"active providers in priority order"`
	Strategies      []string               `json:"strategies" jsonschema:"valid strategy names"`
	DefaultStrategy string                 `json:"default_strategy"`
	ChunkSize       int                    `json:"chunk_size"`
	Metrics         MetricsOutput          `json:"metrics"`
	Cache           map[string]CacheOutput `json:"cache,omitempty" jsonschema:"lookup cache counters per provider"`
}

// MetricsOutput is the session telemetry summary.
type MetricsOutput struct {
	TotalBatches        int64                          `json:"total_batches"`
	TotalItems          int64                          `json:"total_items"`
	ResolutionRate      float64                        `json:"resolution_rate" jsonschema:"percentage of items resolved"`
	Outcomes            map[string]int64               `json:"outcomes"`
	Strategies          map[string]int64               `json:"strategies"`
	Providers           map[string]ProviderStatsOutput `json:"providers"`
	LatencyDistribution map[string]int64               `json:"latency_distribution"`
	TopNotFound         []NotFoundCount                `json:"top_not_found"`
	RecentNotFound      []string                       `json:"recent_not_found"`
	Since               string                         `json:"since" jsonschema:"RFC3339 start of the collection period"`
}

// ProviderStatsOutput holds per-provider call counters.
type ProviderStatsOutput struct {
	Calls  int64 `json:"calls"`
	Hits   int64 `json:"hits"`
	Errors int64 `json:"errors"`
}

// NotFoundCount is a query that repeatedly failed to resolve.
type NotFoundCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// CacheOutput holds lookup cache counters.
type CacheOutput struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// ToResolveOutput converts a batch result to the tool output shape.
func ToResolveOutput(res *resolve.BatchResult) ResolveOutput {
	out := ResolveOutput{
		Addresses: res.Addresses,
		Items:     make(map[string]ItemOutput, len(res.Items)),
		Counts:    res.Counts(),
	}
	if out.Addresses == nil {
		out.Addresses = map[string]address.Address{}
	}
	for item, o := range res.Items {
		io := ItemOutput{
			Error:   string(o.Err),
			Message: o.Message,
		}
		if o.Data != nil {
			io.AddressKey = o.Data.AddressKey
			io.Provider = o.Data.Provider
			io.UnitType = string(o.Data.UnitType)
			io.UnitName = o.Data.UnitName
		}
		out.Items[item] = io
	}
	return out
}

// ToMetricsOutput converts a telemetry snapshot to the tool output shape.
func ToMetricsOutput(snap *telemetry.Snapshot) MetricsOutput {
	out := MetricsOutput{
		TotalBatches:        snap.TotalBatches,
		TotalItems:          snap.TotalItems,
		ResolutionRate:      snap.ResolutionRate(),
		Outcomes:            snap.Outcomes,
		Strategies:          snap.Strategies,
		Providers:           make(map[string]ProviderStatsOutput, len(snap.Providers)),
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
		TopNotFound:         make([]NotFoundCount, 0, len(snap.TopNotFound)),
		RecentNotFound:      snap.RecentNotFound,
	}
	if !snap.Since.IsZero() {
		out.Since = snap.Since.Format(time.RFC3339)
	}
	for name, p := range snap.Providers {
		out.Providers[name] = ProviderStatsOutput{Calls: p.Calls, Hits: p.Hits, Errors: p.Errors}
	}
	for bucket, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = n
	}
	for _, q := range snap.TopNotFound {
		out.TopNotFound = append(out.TopNotFound, NotFoundCount{Query: q.Query, Count: q.Count})
	}
	if out.RecentNotFound == nil {
		out.RecentNotFound = []string{}
	}
	return out
}

// toCacheOutput converts provider cache counters.
func toCacheOutput(stats map[string]provider.CacheStats) map[string]CacheOutput {
	if len(stats) == 0 {
		return nil
	}
	out := make(map[string]CacheOutput, len(stats))
	for name, s := range stats {
		out[name] = CacheOutput(s)
	}
	return out
}
