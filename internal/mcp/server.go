package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/addresolve/internal/config"
	"github.com/Aman-CERP/addresolve/internal/provider"
	"github.com/Aman-CERP/addresolve/internal/resolve"
	"github.com/Aman-CERP/addresolve/internal/telemetry"
	"github.com/Aman-CERP/addresolve/internal/unit"
	"github.com/Aman-CERP/addresolve/pkg/version"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "addresolve"

// CacheReporter exposes provider cache counters. *provider.Set implements it.
type CacheReporter interface {
	CacheStats() map[string]provider.CacheStats
}

// Server is the MCP server for addresolve.
// It exposes batch address resolution and unit parsing to AI clients.
type Server struct {
	mcp    *mcp.Server
	engine *resolve.Engine
	config *config.Config
	logger *slog.Logger

	// Unit parsers by language, built on first use.
	parsers map[string]*unit.Parser

	// Optional, set via SetMetrics and SetCacheReporter.
	metrics *telemetry.ResolveMetrics
	cache   CacheReporter

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        "resolve_addresses",
		Description: "Resolve a batch of free-form addresses to canonical records. Unit suffixes (flat, office, parking space) are split off and carried into the result. Every distinct item gets either an address key or an error kind.",
	},
	{
		Name:        "parse_address",
		Description: "Split one raw address into its house part and unit part without resolving it. Useful to check how a string will be searched.",
	},
	{
		Name:        "resolver_stats",
		Description: "Show active providers, valid strategies, resolution telemetry and cache counters for this session.",
	},
}

// NewServer creates a new MCP server around a resolve engine.
func NewServer(engine *resolve.Engine, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("resolve engine is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:  engine,
		config:  cfg,
		logger:  slog.Default(),
		parsers: make(map[string]*unit.Parser),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.RegisterResources()

	return s, nil
}

// SetMetrics sets the resolve telemetry collector.
// When set, a resolver_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.ResolveMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerMetricsResource()
	}
}

// SetCacheReporter sets the source of cache counters for resolver_stats.
func (s *Server) SetCacheReporter(r CacheReporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = r
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool invokes a tool by name with the given arguments.
// Returns markdown for humans; MCP clients get structured output instead.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "resolve_addresses":
		var in ResolveInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		res, err := s.resolve(ctx, in)
		if err != nil {
			return nil, MapError(err)
		}
		return FormatBatchResult(in.Items, res), nil
	case "parse_address":
		var in ParseInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.parse(in)
		if err != nil {
			return nil, MapError(err)
		}
		return FormatParse(in.Raw, out), nil
	case "resolver_stats":
		return FormatStats(s.stats()), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// decodeArgs round-trips loosely typed arguments through JSON into a typed input.
func decodeArgs(args map[string]any, dst any) error {
	if args == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// resolve validates the input and runs one batch.
func (s *Server) resolve(ctx context.Context, in ResolveInput) (*resolve.BatchResult, error) {
	if len(in.Items) == 0 {
		return nil, NewInvalidParamsError("items parameter is required and must be a non-empty array")
	}
	if len(in.Items) > MaxBatchItems {
		return nil, NewInvalidParamsError(fmt.Sprintf("too many items: %d (max %d)", len(in.Items), MaxBatchItems))
	}

	extract := s.config.Resolver.ExtractUnit
	if in.ExtractUnit != nil {
		extract = *in.ExtractUnit
	}
	lang := in.Language
	if lang == "" {
		lang = s.config.Resolver.Language
	}

	requestID := generateRequestID()
	start := time.Now()

	s.logger.Info("resolve_started",
		slog.String("request_id", requestID),
		slog.Int("items", len(in.Items)),
		slog.String("strategy", in.Strategy),
		slog.Bool("extract_unit", extract))

	res, err := s.engine.ResolveBatch(ctx, in.Items, resolve.Options{
		Strategy:    in.Strategy,
		ExtractUnit: extract,
		Scope: provider.Scope{
			TenantID:  in.Tenant,
			Language:  lang,
			RequestID: requestID,
		},
	})
	if err != nil {
		s.logger.Warn("resolve_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("resolve_completed",
		slog.String("request_id", requestID),
		slog.Any("counts", res.Counts()),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// parse splits one address with the parser for the requested language.
func (s *Server) parse(in ParseInput) (ParseOutput, error) {
	if strings.TrimSpace(in.Raw) == "" {
		return ParseOutput{}, NewInvalidParamsError("raw parameter is required and must be a non-empty string")
	}
	p := s.parserFor(in.Language)
	parsed := p.Parse(in.Raw)

	out := ParseOutput{
		Address:  parsed.Address,
		UnitType: string(parsed.UnitType),
		UnitName: parsed.UnitName,
		HasUnit:  parsed.HasUnit(),
	}
	if parsed.UnitName != "" {
		out.NormalizedName = p.NormalizeUnitName(parsed.UnitName)
	}
	return out, nil
}

// parserFor returns the cached parser for lang, building it on first use.
func (s *Server) parserFor(lang string) *unit.Parser {
	if lang == "" {
		lang = s.config.Resolver.Language
	}
	lang = strings.ToLower(lang)

	s.mu.RLock()
	p, ok := s.parsers[lang]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.parsers[lang]; ok {
		return p
	}
	p = unit.NewParser(unit.DictionaryFor(lang))
	s.parsers[lang] = p
	return p
}

// stats gathers the resolver_stats output.
func (s *Server) stats() StatsOutput {
	s.mu.RLock()
	metrics := s.metrics
	cache := s.cache
	s.mu.RUnlock()

	out := StatsOutput{
		Providers:       s.engine.Providers(),
		Strategies:      resolve.Strategies(),
		DefaultStrategy: s.config.Resolver.Strategy,
		ChunkSize:       s.config.Resolver.ChunkSize,
		Metrics:         ToMetricsOutput(metrics.Snapshot()),
	}
	if cache != nil {
		out.Cache = toCacheOutput(cache.CacheStats())
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[0].Name,
		Description: toolInfos[0].Description,
	}, s.mcpResolveHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[0].Name))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[1].Name,
		Description: toolInfos[1].Description,
	}, s.mcpParseHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[1].Name))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[2].Name,
		Description: toolInfos[2].Description,
	}, s.mcpStatsHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[2].Name))

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

// mcpResolveHandler is the MCP SDK handler for the resolve_addresses tool.
func (s *Server) mcpResolveHandler(ctx context.Context, _ *mcp.CallToolRequest, input ResolveInput) (
	*mcp.CallToolResult,
	ResolveOutput,
	error,
) {
	res, err := s.resolve(ctx, input)
	if err != nil {
		return nil, ResolveOutput{}, MapError(err)
	}
	return nil, ToResolveOutput(res), nil
}

// mcpParseHandler is the MCP SDK handler for the parse_address tool.
func (s *Server) mcpParseHandler(_ context.Context, _ *mcp.CallToolRequest, input ParseInput) (
	*mcp.CallToolResult,
	ParseOutput,
	error,
) {
	out, err := s.parse(input)
	if err != nil {
		return nil, ParseOutput{}, MapError(err)
	}
	return nil, out, nil
}

// mcpStatsHandler is the MCP SDK handler for the resolver_stats tool.
func (s *Server) mcpStatsHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	return nil, s.stats(), nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server stops when its context is canceled.
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
