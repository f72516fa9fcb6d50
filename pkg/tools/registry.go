// Package tools provides the enrichment tool registry and the coordinator
// that fans lookups out over source addresses and synthesizes clustering
// scores from the results.
package tools

import (
	"context"
	"fmt"

	"github.com/dshield-labs/coordengine/pkg/models"
)

// Tool names. The set is fixed at build time; callers reference tools by
// name for fan-out.
const (
	ToolBGPLookup   = "bgp_lookup"
	ToolThreatIntel = "threat_intel"
	ToolGeolocation = "geolocation"
	ToolASNAnalysis = "asn_analysis"
)

// Tool resolves enrichment data for a single address. Implementations must
// be safe for concurrent use.
type Tool interface {
	Name() string
	LookupAddr(ctx context.Context, addr string) (models.AddressData, error)
}

// Registry is a typed map from tool name to implementation.
type Registry map[string]Tool

// NewRegistry builds the default registry with the built-in providers.
func NewRegistry() Registry {
	return Registry{
		ToolBGPLookup:   &bgpLookup{},
		ToolThreatIntel: &threatIntel{},
		ToolGeolocation: &geolocation{},
		ToolASNAnalysis: &asnAnalysis{},
	}
}

// Get returns the named tool or an error for unknown names.
func (r Registry) Get(name string) (Tool, error) {
	tool, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return tool, nil
}

// ToolsFor returns the tool set for a depth: the base set, plus ASN analysis
// for deep runs.
func ToolsFor(depth models.AnalysisDepth) []string {
	names := []string{ToolBGPLookup, ToolThreatIntel, ToolGeolocation}
	if depth == models.DepthDeep {
		names = append(names, ToolASNAnalysis)
	}
	return names
}
