package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/models"
)

// Synthesis dimensions written to enrichment data.
const (
	SynthInfrastructure = models.DimInfrastructure
	SynthGeographic     = models.DimGeographic
	SynthThreat         = "threat_correlation"
)

// Coordinator fans enrichment lookups out over source addresses with bounded
// concurrency and synthesizes clustering scores from the merged results.
type Coordinator struct {
	registry    Registry
	cache       *cache.Cache // nil disables per-indicator memoization
	concurrency int64
}

// NewCoordinator creates a coordinator. cache may be nil.
func NewCoordinator(registry Registry, resultCache *cache.Cache, concurrency int) *Coordinator {
	if registry == nil {
		panic("tools.NewCoordinator: registry must not be nil")
	}
	if concurrency < 1 {
		concurrency = 8
	}
	return &Coordinator{
		registry:    registry,
		cache:       resultCache,
		concurrency: int64(concurrency),
	}
}

// Execute runs every tool in the depth's tool set over the addresses.
// Tool failures are isolated: a failed tool contributes an error entry and
// the remaining tools proceed. The returned outputs are merged
// deterministically by (tool, address).
func (c *Coordinator) Execute(ctx context.Context, addrs []string, depth models.AnalysisDepth) map[string]models.ToolOutput {
	names := ToolsFor(depth)
	results := make(map[string]models.ToolOutput, len(names))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(c.concurrency)

	for _, name := range names {
		tool, err := c.registry.Get(name)
		if err != nil {
			results[name] = models.ToolOutput{Error: err.Error()}
			continue
		}

		wg.Add(1)
		go func(name string, tool Tool) {
			defer wg.Done()
			output := c.runTool(ctx, tool, addrs, sem)
			mu.Lock()
			results[name] = output
			mu.Unlock()
		}(name, tool)
	}
	wg.Wait()

	return results
}

// runTool looks up every address concurrently under the shared semaphore.
// A per-address failure fails the whole tool, matching the per-tool error
// isolation contract.
func (c *Coordinator) runTool(ctx context.Context, tool Tool, addrs []string, sem *semaphore.Weighted) models.ToolOutput {
	type lookupResult struct {
		addr string
		data models.AddressData
		err  error
	}

	resCh := make(chan lookupResult, len(addrs))
	var wg sync.WaitGroup

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				resCh <- lookupResult{addr: addr, err: err}
				return
			}
			defer sem.Release(1)

			data, err := c.lookupCached(ctx, tool, addr)
			resCh <- lookupResult{addr: addr, data: data, err: err}
		}(addr)
	}
	wg.Wait()
	close(resCh)

	addresses := make(map[string]models.AddressData, len(addrs))
	for res := range resCh {
		if res.err != nil {
			slog.Warn("Tool lookup failed",
				"tool", tool.Name(), "addr", res.addr, "error", res.err)
			return models.ToolOutput{Error: fmt.Sprintf("%s: %v", res.addr, res.err)}
		}
		addresses[res.addr] = res.data
	}
	return models.ToolOutput{Addresses: addresses}
}

// lookupCached consults the per-indicator cache before hitting the tool.
// Threat intel uses the threat namespace; everything else the enrichment
// namespace. Cache failures degrade to a direct lookup.
func (c *Coordinator) lookupCached(ctx context.Context, tool Tool, addr string) (models.AddressData, error) {
	if c.cache == nil {
		return tool.LookupAddr(ctx, addr)
	}

	namespace := cache.NamespaceEnrichment
	id := tool.Name() + ":" + addr
	if tool.Name() == ToolThreatIntel {
		namespace = cache.NamespaceThreat
		id = addr
	}

	var cached models.AddressData
	if hit, err := c.cache.Get(ctx, namespace, id, &cached); err == nil && hit {
		return cached, nil
	}

	data, err := tool.LookupAddr(ctx, addr)
	if err != nil {
		return models.AddressData{}, err
	}
	if err := c.cache.Set(ctx, namespace, id, data); err != nil {
		slog.Warn("Failed to cache tool result", "tool", tool.Name(), "addr", addr, "error", err)
	}
	return data, nil
}

// Synthesize reduces tool outputs to the three enrichment dimensions:
//
//   - infrastructure_clustering: 0.8 one ASN, 0.5 ASN cardinality < |addrs|, else 0.0
//   - geographic_proximity:      0.8 one country, 0.5 cardinality < |addrs|, else 0.0
//   - threat_correlation:        mean of available threat scores, 0.0 if none
//
// Missing tool outputs contribute 0.0 to their slot. Deterministic in the
// tool outputs.
func Synthesize(results map[string]models.ToolOutput) map[string]float64 {
	synthesis := map[string]float64{
		SynthInfrastructure: 0.0,
		SynthGeographic:     0.0,
		SynthThreat:         0.0,
	}

	if bgp, ok := results[ToolBGPLookup]; ok && bgp.Error == "" && len(bgp.Addresses) > 0 {
		synthesis[SynthInfrastructure] = cardinalityScore(distinct(bgp.Addresses, func(d models.AddressData) string { return d.ASN }), len(bgp.Addresses))
	}

	if geo, ok := results[ToolGeolocation]; ok && geo.Error == "" && len(geo.Addresses) > 0 {
		synthesis[SynthGeographic] = cardinalityScore(distinct(geo.Addresses, func(d models.AddressData) string { return d.Country }), len(geo.Addresses))
	}

	if threat, ok := results[ToolThreatIntel]; ok && threat.Error == "" {
		var sum float64
		var n int
		for _, addr := range sortedKeys(threat.Addresses) {
			if score := threat.Addresses[addr].ThreatScore; score != nil {
				sum += *score
				n++
			}
		}
		if n > 0 {
			synthesis[SynthThreat] = sum / float64(n)
		}
	}

	return synthesis
}

func cardinalityScore(distinctCount, total int) float64 {
	switch {
	case distinctCount == 1:
		return 0.8
	case distinctCount < total:
		return 0.5
	default:
		return 0.0
	}
}

func distinct(addrs map[string]models.AddressData, key func(models.AddressData) string) int {
	seen := make(map[string]struct{})
	for _, data := range addrs {
		seen[key(data)] = struct{}{}
	}
	return len(seen)
}

func sortedKeys(m map[string]models.AddressData) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
