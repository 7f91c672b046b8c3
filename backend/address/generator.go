package address

import (
	"math/rand"
	"net/netip"
	"sync"

	"go4.org/netipx"
)

// Mode selects which draw strategy the Generator uses.
type Mode string

const (
	ModeSmartRandom Mode = "smart-random"
	ModeRandom      Mode = "random"
	ModeRange       Mode = "range"
	ModeTargeted    Mode = "targeted"
)

// maxRejectionAttempts bounds the rejection-sampling loop per §4.1's
// edge case: after 32 attempts, return whatever valid public address
// the last attempt produced.
const maxRejectionAttempts = 32

// Oracle answers membership queries the Generator must respect: an
// address already in the seen-set or blacklist is never reproposed.
type Oracle interface {
	Seen(Address) bool
	Blacklisted(Address) bool
}

// LastFoundFunc returns the most recently discovered server's address,
// feeding the cluster draw strategy. ok is false before any discovery.
type LastFoundFunc func() (Address, bool)

// Generator produces the lazy candidate stream described in §4.1. It
// owns no network or disk state — Oracle and LastFoundFunc are the
// explicit seams into the scanner's seen-set / blacklist / last-found
// state, per the "no process-wide singletons" design note.
type Generator struct {
	mode     Mode
	excluded []CIDR
	ranges   []CIDR // union for range/targeted
	popular  []CIDR
	oracle   Oracle
	lastFnd  LastFoundFunc

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Generator for mode, drawing range/targeted candidates
// from the union of rangeSpecs minus excludeSpecs (computed once via
// netipx.IPSetBuilder, the same approach the teacher's buildCIDRs uses
// for target/exclude set algebra).
func New(mode Mode, rangeSpecs, excludeSpecs []string, oracle Oracle, lastFound LastFoundFunc) (*Generator, error) {
	excluded, err := ParseCIDRs(excludeSpecs)
	if err != nil {
		return nil, err
	}
	if len(excluded) == 0 {
		excluded = DefaultExcluded()
	}

	var ranges []CIDR
	if mode == ModeRange || mode == ModeTargeted {
		ranges, err = unionMinusExcluded(rangeSpecs, excludeSpecs)
		if err != nil {
			return nil, err
		}
	}

	return &Generator{
		mode:     mode,
		excluded: excluded,
		ranges:   ranges,
		popular:  PopularRanges(),
		oracle:   oracle,
		lastFnd:  lastFound,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

func unionMinusExcluded(include, exclude []string) ([]CIDR, error) {
	var builder netipx.IPSetBuilder
	for _, raw := range include {
		if raw == "" {
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, err
		}
		builder.AddPrefix(p)
	}
	for _, raw := range exclude {
		if raw == "" {
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, err
		}
		builder.RemovePrefix(p)
	}
	set, err := builder.IPSet()
	if err != nil {
		return nil, err
	}
	out := make([]CIDR, 0, len(set.Prefixes()))
	for _, p := range set.Prefixes() {
		if !p.Addr().Is4() {
			continue
		}
		b := p.Addr().As4()
		out = append(out, CIDR{Base: FromOctets(b[0], b[1], b[2], b[3]), Prefix: p.Bits()})
	}
	return out, nil
}

// Next draws the next candidate. It returns ok=false only when a
// bounded-list mode (range/targeted) has no configured CIDRs to draw
// from at all; otherwise it always eventually returns a value, per
// the rejection-sampling bailout in §4.1.
func (g *Generator) Next() (Address, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.mode {
	case ModeRandom:
		return g.drawUniform(), true
	case ModeRange, ModeTargeted:
		if len(g.ranges) == 0 {
			return 0, false
		}
		return g.drawFromSet(g.ranges), true
	case ModeSmartRandom:
		return g.drawSmart(), true
	default:
		return g.drawUniform(), true
	}
}

func (g *Generator) drawSmart() Address {
	switch g.rng.Intn(3) {
	case 0:
		return g.drawUniform()
	case 1:
		if addr, ok := g.drawCluster(); ok {
			return addr
		}
		return g.drawUniform()
	default:
		return g.drawFromSet(g.popular)
	}
}

// drawUniform implements strategy (a): rejection-sample a uniformly
// random IPv4 address against excluded ranges, the seen-set, and the
// blacklist, giving up after maxRejectionAttempts and returning the
// last candidate regardless of seen/blacklist status (it is still
// guaranteed public).
func (g *Generator) drawUniform() Address {
	var candidate Address
	for attempt := 0; attempt < maxRejectionAttempts; attempt++ {
		candidate = Address(g.rng.Uint32())
		if !IsPublic(candidate, g.excluded) {
			continue
		}
		if g.oracle != nil && (g.oracle.Seen(candidate) || g.oracle.Blacklisted(candidate)) {
			continue
		}
		return candidate
	}
	for !IsPublic(candidate, g.excluded) {
		candidate = Address(g.rng.Uint32())
	}
	return candidate
}

// drawCluster implements strategy (b): copy the last-found server's
// /24 and pick a random host octet. Falls through to ok=false when
// there is no last-found server yet, or its /24 is itself excluded.
func (g *Generator) drawCluster() (Address, bool) {
	if g.lastFnd == nil {
		return 0, false
	}
	base, ok := g.lastFnd()
	if !ok {
		return 0, false
	}
	for attempt := 0; attempt < maxRejectionAttempts; attempt++ {
		candidate := base.WithLastOctet(byte(g.rng.Intn(256)))
		if !IsPublic(candidate, g.excluded) {
			return 0, false
		}
		if g.oracle != nil && (g.oracle.Seen(candidate) || g.oracle.Blacklisted(candidate)) {
			continue
		}
		return candidate, true
	}
	return 0, false
}

// drawFromSet picks a CIDR weighted by host count, then a uniform host
// within it — used by the popular-range strategy and the range/targeted
// modes over their resolved CIDR set.
func (g *Generator) drawFromSet(set []CIDR) Address {
	if len(set) == 0 {
		return g.drawUniform()
	}
	var total uint64
	for _, c := range set {
		total += c.HostCount()
	}
	if total == 0 {
		return g.drawUniform()
	}
	pick := uint64(g.rng.Int63()) % total
	var running uint64
	for _, c := range set {
		running += c.HostCount()
		if pick < running {
			for attempt := 0; attempt < maxRejectionAttempts; attempt++ {
				candidate := c.RandomHost(g.rng)
				if !IsPublic(candidate, g.excluded) {
					break
				}
				if g.oracle != nil && (g.oracle.Seen(candidate) || g.oracle.Blacklisted(candidate)) {
					continue
				}
				return candidate
			}
			return g.drawUniform()
		}
	}
	return g.drawUniform()
}
