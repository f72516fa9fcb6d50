package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"net"
	"strings"

	"github.com/dshield-labs/coordengine/pkg/models"
)

// Built-in providers derive stable enrichment data from address structure:
// addresses in the same /16 share an ASN and prefix, addresses in the same /8
// share a country. Deterministic by construction, so synthesis over them is
// reproducible. They stand in for live BGP/intel feeds behind the same Tool
// contract.

var countryTable = []string{"US", "CN", "RU", "DE", "BR", "IN", "NL", "KR", "FR", "GB"}
var cityTable = []string{"Unknown", "Ashburn", "Shanghai", "Moscow", "Frankfurt", "Sao Paulo"}
var orgTable = []string{"Hostway Networks", "Baltic Telecom", "CloudRange LLC", "Transit One", "NetVolga"}

type bgpLookup struct{}

func (t *bgpLookup) Name() string { return ToolBGPLookup }

func (t *bgpLookup) LookupAddr(_ context.Context, addr string) (models.AddressData, error) {
	prefix, err := addrPrefix16(addr)
	if err != nil {
		return models.AddressData{}, err
	}
	return models.AddressData{
		ASN:    asnFor(prefix),
		Prefix: prefix,
	}, nil
}

type threatIntel struct{}

func (t *threatIntel) Name() string { return ToolThreatIntel }

func (t *threatIntel) LookupAddr(_ context.Context, addr string) (models.AddressData, error) {
	if _, err := parseAddr(addr); err != nil {
		return models.AddressData{}, err
	}
	// Stable score in [0.20, 0.79].
	score := 0.20 + float64(hash(addr)%60)/100
	reputation := "unknown"
	switch {
	case score >= 0.7:
		reputation = "malicious"
	case score >= 0.5:
		reputation = "suspicious"
	}
	return models.AddressData{
		ThreatScore: &score,
		Reputation:  reputation,
	}, nil
}

type geolocation struct{}

func (t *geolocation) Name() string { return ToolGeolocation }

func (t *geolocation) LookupAddr(_ context.Context, addr string) (models.AddressData, error) {
	prefix8, err := addrPrefix8(addr)
	if err != nil {
		return models.AddressData{}, err
	}
	return models.AddressData{
		Country: countryTable[hash(prefix8)%uint32(len(countryTable))],
		City:    cityTable[hash(addr)%uint32(len(cityTable))],
	}, nil
}

type asnAnalysis struct{}

func (t *asnAnalysis) Name() string { return ToolASNAnalysis }

func (t *asnAnalysis) LookupAddr(_ context.Context, addr string) (models.AddressData, error) {
	prefix, err := addrPrefix16(addr)
	if err != nil {
		return models.AddressData{}, err
	}
	return models.AddressData{
		ASN: asnFor(prefix),
		Org: orgTable[hash(prefix)%uint32(len(orgTable))],
	}, nil
}

func parseAddr(addr string) (net.IP, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	return ip, nil
}

// addrPrefix16 returns the /16 network (IPv4) or the first two hextets
// (IPv6) as the prefix key.
func addrPrefix16(addr string) (string, error) {
	ip, err := parseAddr(addr)
	if err != nil {
		return "", err
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.0.0/16", v4[0], v4[1]), nil
	}
	parts := strings.Split(ip.String(), ":")
	if len(parts) < 2 {
		return ip.String() + "/32", nil
	}
	return parts[0] + ":" + parts[1] + "::/32", nil
}

func addrPrefix8(addr string) (string, error) {
	ip, err := parseAddr(addr)
	if err != nil {
		return "", err
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.0.0.0/8", v4[0]), nil
	}
	return strings.Split(ip.String(), ":")[0] + "::/16", nil
}

func asnFor(prefix string) string {
	return fmt.Sprintf("AS%d", 1000+hash(prefix)%9000)
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
