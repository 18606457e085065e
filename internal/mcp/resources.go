package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs served by the server.
const (
	MetricsResourceURI = "addresolve://metrics"
	ConfigResourceURI  = "addresolve://config"
)

// RegisterResources registers the static resources. NewServer calls it; the
// metrics resource is registered separately by SetMetrics.
func (s *Server) RegisterResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "resolver_config",
			URI:         ConfigResourceURI,
			Description: "Effective resolver configuration (secrets omitted)",
			MIMEType:    "application/json",
		},
		s.makeJSONHandler(ConfigResourceURI, func() any { return s.config }),
	)
}

// registerMetricsResource registers the resolver_metrics resource.
func (s *Server) registerMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "resolver_metrics",
			URI:         MetricsResourceURI,
			Description: "Resolution telemetry: outcomes, provider hit rates, latency and unresolved queries",
			MIMEType:    "application/json",
		},
		s.makeJSONHandler(MetricsResourceURI, func() any {
			s.mu.RLock()
			metrics := s.metrics
			s.mu.RUnlock()
			return ToMetricsOutput(metrics.Snapshot())
		}),
	)
}

// makeJSONHandler serves the value returned by load as indented JSON.
func (s *Server) makeJSONHandler(uri string, load func() any) mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		text, err := s.readJSON(load)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     text,
				},
			},
		}, nil
	}
}

func (s *Server) readJSON(load func() any) (string, error) {
	content, err := json.MarshalIndent(load(), "", "  ")
	if err != nil {
		return "", MapError(err)
	}
	return string(content), nil
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(_ context.Context, uri string) (string, error) {
	switch uri {
	case ConfigResourceURI:
		return s.readJSON(func() any { return s.config })
	case MetricsResourceURI:
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()
		if metrics == nil {
			return "", NewResourceNotFoundError(uri)
		}
		return s.readJSON(func() any { return ToMetricsOutput(metrics.Snapshot()) })
	default:
		return "", NewResourceNotFoundError(uri)
	}
}
