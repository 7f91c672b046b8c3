// Package enrich turns a parsed SLP status response into the
// persisted EnrichedServer record: version/player/MOTD extraction,
// modded-platform detection, quality scoring, and a best-effort
// country hint from reverse DNS.
package enrich

import (
	"context"
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/miekg/dns"
	"github.com/twmb/murmur3"

	"mcslp/backend/address"
	"mcslp/backend/fingerprint"
	"mcslp/backend/protocol"
)

// PlayerSample mirrors protocol.PlayerSample for the persisted record.
type PlayerSample = protocol.PlayerSample

// EnrichedServer is the fully-formed, persistable result of a
// successful probe.
type EnrichedServer struct {
	Address      address.Address
	Port         int
	Timestamp    time.Time
	ResponseMs   int64
	Version      string
	Protocol     int
	PlayersOn    int
	PlayersMax   int
	PlayersSample []PlayerSample
	Description  string
	MOTD         string
	FaviconPresent bool
	FaviconHash  string
	Modded       bool
	Platforms    []string
	Country      string
	Quality      int
}

var motdColorCode = regexp.MustCompile(`§[0-9a-fk-or]`)

// countryTable is the hostname-substring → country lookup from §3.
// Order matters: first match wins, so it is a slice, not a map.
var countryTable = []struct {
	needle  string
	country string
}{
	{"us", "United States"},
	{"uk", "United Kingdom"},
	{"de", "Germany"},
	{"fr", "France"},
	{"nl", "Netherlands"},
	{"au", "Australia"},
	{"ca", "Canada"},
	{"jp", "Japan"},
	{"kr", "South Korea"},
	{"br", "Brazil"},
	{"ru", "Russia"},
	{"cn", "China"},
}

// Resolver performs the bounded-deadline PTR lookup the Enricher uses
// for the country hint. It is satisfied by *DNSResolver in production
// and stubbed out in tests.
type Resolver interface {
	PTR(ctx context.Context, addr address.Address) (string, bool)
}

// DNSResolver issues a direct PTR query via miekg/dns rather than
// net.LookupAddr, so a slow or hung resolver never borrows from the
// prober's own timeout budget — it gets its own bounded deadline.
type DNSResolver struct {
	Server  string // e.g. "1.1.1.1:53"
	Timeout time.Duration
}

func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if server == "" {
		server = "1.1.1.1:53"
	}
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	return &DNSResolver{Server: server, Timeout: timeout}
}

func (r *DNSResolver) PTR(ctx context.Context, addr address.Address) (string, bool) {
	deadline := time.Now().Add(r.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	m := new(dns.Msg)
	reverseName, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", false
	}
	m.SetQuestion(reverseName, dns.TypePTR)

	c := &dns.Client{Timeout: time.Until(deadline)}
	if c.Timeout <= 0 {
		return "", false
	}
	in, _, err := c.Exchange(m, r.Server)
	if err != nil || in == nil {
		return "", false
	}
	for _, ans := range in.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), true
		}
	}
	return "", false
}

// Enricher converts raw probe output into EnrichedServer records.
type Enricher struct {
	Engine        *fingerprint.Engine
	Resolver      Resolver
	EnableGeoIP   bool
	VersionFilter []string
	versionFilterSet map[string]struct{}
}

func New(engine *fingerprint.Engine, resolver Resolver, enableGeoIP bool, versionFilter []string) *Enricher {
	e := &Enricher{
		Engine:        engine,
		Resolver:      resolver,
		EnableGeoIP:   enableGeoIP,
		VersionFilter: versionFilter,
	}
	if len(versionFilter) > 0 {
		e.versionFilterSet = make(map[string]struct{}, len(versionFilter))
		for _, v := range versionFilter {
			e.versionFilterSet[v] = struct{}{}
		}
	}
	return e
}

// Enrich is the pure core: it never blocks beyond the ctx deadline
// passed in, and country resolution failures degrade silently to
// Unknown per §4.5.
func (e *Enricher) Enrich(ctx context.Context, addr address.Address, port int, status protocol.RawStatus, responseMs int64, now time.Time) EnrichedServer {
	motd := stripColorCodes(status.Description)
	if motd == "" {
		motd = "No description"
	}

	version := status.VersionName
	if version == "" {
		version = "Unknown"
	}

	banner := status.RawJSON
	modded, platforms := false, []string(nil)
	if e.Engine != nil {
		modded, platforms = e.Engine.Identify(fingerprint.Input{Port: port}, fingerprint.Evidence{Banner: banner})
	}

	country := "Unknown"
	if e.EnableGeoIP && e.Resolver != nil {
		if host, ok := e.Resolver.PTR(ctx, addr); ok {
			country = matchCountry(host)
		}
	}

	faviconHash := ""
	if status.HasFavicon {
		faviconHash = faviconHashFromRaw(status.RawJSON)
	}

	es := EnrichedServer{
		Address:        addr,
		Port:           port,
		Timestamp:      now,
		ResponseMs:     responseMs,
		Version:        version,
		Protocol:       status.VersionProtocol,
		PlayersOn:      status.PlayersOnline,
		PlayersMax:     status.PlayersMax,
		PlayersSample:  status.PlayersSample,
		Description:    status.Description,
		MOTD:           motd,
		FaviconPresent: status.HasFavicon,
		FaviconHash:    faviconHash,
		Modded:         modded,
		Platforms:      platforms,
		Country:        country,
	}
	es.Quality = qualityScore(es)
	return es
}

// PassesFilters implements §4.4's filter predicates.
func (e *Enricher) PassesFilters(es EnrichedServer, minPlayers, maxPlayers int) bool {
	if e.versionFilterSet != nil {
		if _, ok := e.versionFilterSet[es.Version]; !ok {
			return false
		}
	}
	if es.PlayersOn < minPlayers {
		return false
	}
	if es.PlayersOn > maxPlayers {
		return false
	}
	return true
}

var versionBonusMarkers = []string{"1.21", "1.20", "1.19", "1.18"}

func qualityScore(es EnrichedServer) int {
	score := 0
	if es.PlayersOn > 0 {
		score += 20
	}
	if es.PlayersOn > 10 {
		score += 20
	}
	if es.PlayersOn > 50 {
		score += 20
	}
	if len(es.MOTD) > 10 {
		score += 15
	}
	if versionHasBonusMarker(es.Version) {
		score += 15
	}
	if es.ResponseMs < 100 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// versionHasBonusMarker parses the reported version with
// hashicorp/go-version when possible (tolerating strings like
// "1.20.4" or "Paper 1.21.1") and falls back to substring matching
// over the whole string when it doesn't parse as a semantic version or
// its parsed major.minor is not one of the markers.
func versionHasBonusMarker(v string) bool {
	if v == "" || v == "Unknown" {
		return false
	}
	if parsed, err := goversion.NewVersion(extractVersionToken(v)); err == nil {
		seg := parsed.Segments()
		if len(seg) >= 2 {
			candidate := strconv.Itoa(seg[0]) + "." + strconv.Itoa(seg[1])
			for _, marker := range versionBonusMarkers {
				if candidate == marker {
					return true
				}
			}
		}
	}
	for _, marker := range versionBonusMarkers {
		if strings.Contains(v, marker) {
			return true
		}
	}
	return false
}

var versionTokenPattern = regexp.MustCompile(`\d+(\.\d+)+`)

func extractVersionToken(v string) string {
	if tok := versionTokenPattern.FindString(v); tok != "" {
		return tok
	}
	return v
}

func stripColorCodes(s string) string {
	return motdColorCode.ReplaceAllString(s, "")
}

func matchCountry(hostname string) string {
	lower := strings.ToLower(hostname)
	for _, entry := range countryTable {
		if strings.Contains(lower, entry.needle) {
			return entry.country
		}
	}
	return "Unknown"
}

// faviconHashFromRaw re-extracts the base64 favicon payload from the
// raw status JSON and hashes it the same way the teacher hashes HTTP
// favicons: murmur3 over the base64 text itself, not the decoded
// bytes, formatted as a decimal string.
func faviconHashFromRaw(raw string) string {
	const marker = `"favicon"`
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return ""
	}
	rest := raw[idx+len(marker):]
	start := strings.Index(rest, "base64,")
	if start < 0 {
		return ""
	}
	rest = rest[start+len("base64,"):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	b64 := rest[:end]
	if _, err := base64.StdEncoding.DecodeString(b64); err != nil {
		return ""
	}
	hash := int32(murmur3.Sum32([]byte(b64)))
	return strconv.FormatInt(int64(hash), 10)
}
