package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/tools"
)

// CampaignRecord is the cross-analysis campaign memory kept in the campaign
// cache namespace, keyed by infrastructure fingerprint.
type CampaignRecord struct {
	Fingerprint  string    `json:"fingerprint"`
	Sightings    int       `json:"sightings"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastAnalysis string    `json:"last_analysis"`
}

// Enricher is the deep-depth enrichment stage. It correlates the analysis
// against campaign memory and annotates the state with supplemental context.
// Failures are absorbed; the stage never blocks the pipeline.
type Enricher struct {
	cache *cache.Cache // nil disables campaign memory
}

// NewEnricher creates the enrichment stage. resultCache may be nil.
func NewEnricher(resultCache *cache.Cache) *Enricher {
	return &Enricher{cache: resultCache}
}

// Name implements Stage.
func (e *Enricher) Name() string { return StageEnricher }

// Execute records campaign sightings and marks the analysis as enriched.
func (e *Enricher) Execute(ctx context.Context, st *models.AnalysisState) error {
	fingerprint := infrastructureFingerprint(st)

	if e.cache != nil && fingerprint != "" {
		if err := e.recordSighting(ctx, st, fingerprint); err != nil {
			st.AddError(fmt.Sprintf("campaign enrichment degraded: %v", err))
			slog.Warn("Campaign memory unavailable",
				"analysis_id", st.AnalysisID, "fingerprint", fingerprint, "error", err)
		}
	}

	st.EnrichmentApplied = true
	return nil
}

// ApplyDefaults implements Stage: enrichment simply did not apply.
func (e *Enricher) ApplyDefaults(st *models.AnalysisState) {
	st.EnrichmentApplied = false
}

func (e *Enricher) recordSighting(ctx context.Context, st *models.AnalysisState, fingerprint string) error {
	var record CampaignRecord
	hit, err := e.cache.Get(ctx, cache.NamespaceCampaign, fingerprint, &record)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if !hit {
		record = CampaignRecord{Fingerprint: fingerprint, FirstSeen: now}
	}
	record.Sightings++
	record.LastSeen = now
	record.LastAnalysis = st.AnalysisID

	if record.Sightings > 1 {
		st.KeyFactors = append(st.KeyFactors, fmt.Sprintf(
			"infrastructure fingerprint %s seen in %d prior analyses", fingerprint, record.Sightings-1))
	}

	return e.cache.Set(ctx, cache.NamespaceCampaign, fingerprint, record)
}

// infrastructureFingerprint summarizes the dominant ASN and country from the
// tool results. Empty when no tool data is available.
func infrastructureFingerprint(st *models.AnalysisState) string {
	bgp, hasBGP := st.ToolResults[tools.ToolBGPLookup]
	geo, hasGeo := st.ToolResults[tools.ToolGeolocation]
	if !hasBGP || bgp.Error != "" || len(bgp.Addresses) == 0 {
		return ""
	}

	asn := dominantValue(bgp.Addresses, func(d models.AddressData) string { return d.ASN })
	country := "??"
	if hasGeo && geo.Error == "" && len(geo.Addresses) > 0 {
		country = dominantValue(geo.Addresses, func(d models.AddressData) string { return d.Country })
	}
	return asn + "/" + country
}

func dominantValue(addrs map[string]models.AddressData, key func(models.AddressData) string) string {
	counts := make(map[string]int)
	for _, data := range addrs {
		counts[key(data)]++
	}
	best, bestN := "", -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}
