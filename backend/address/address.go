// Package address implements the candidate-address data model: the
// 32-bit Address type, CIDR blocks, and the public/excluded-range
// predicate the Address Generator and Enricher both rely on.
package address

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
)

// Address is an IPv4 address packed into its 32-bit integer form,
// compared and hashed by that integer per §3.
type Address uint32

// FromOctets packs four octets into an Address.
func FromOctets(a, b, c, d byte) Address {
	return Address(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// FromNetIP converts a net.IP (v4) into an Address.
func FromNetIP(ip net.IP) (Address, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return FromOctets(v4[0], v4[1], v4[2], v4[3]), true
}

// Octets returns the four dotted-quad bytes, most significant first.
func (a Address) Octets() [4]byte {
	return [4]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}
}

// String renders the dotted-quad form.
func (a Address) String() string {
	o := a.Octets()
	return fmt.Sprintf("%d.%d.%d.%d", o[0], o[1], o[2], o[3])
}

// NetIP converts back to a net.IP for use with net.Dial and friends.
func (a Address) NetIP() net.IP {
	o := a.Octets()
	return net.IPv4(o[0], o[1], o[2], o[3])
}

// Subnet24 returns the /24 this address belongs to, as the top three
// octets packed into a single integer — the rate limiter's granularity.
func (a Address) Subnet24() uint32 {
	return uint32(a) >> 8
}

// WithLastOctet replaces the fourth octet, used by the cluster draw
// strategy to stay within a discovered server's /24.
func (a Address) WithLastOctet(last byte) Address {
	return Address((uint32(a) &^ 0xFF) | uint32(last))
}

// CIDR is a base address plus prefix length.
type CIDR struct {
	Base   Address
	Prefix int
}

// ParseCIDR parses a "a.b.c.d/n" string.
func ParseCIDR(s string) (CIDR, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return CIDR{}, fmt.Errorf("address: invalid CIDR %q: %w", s, err)
	}
	addr := prefix.Addr()
	if !addr.Is4() {
		return CIDR{}, fmt.Errorf("address: %q is not IPv4", s)
	}
	b := addr.As4()
	return CIDR{Base: FromOctets(b[0], b[1], b[2], b[3]), Prefix: prefix.Bits()}, nil
}

// ParseCIDRs parses a list, skipping blanks.
func ParseCIDRs(items []string) ([]CIDR, error) {
	out := make([]CIDR, 0, len(items))
	for _, raw := range items {
		if raw == "" {
			continue
		}
		c, err := ParseCIDR(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// HostCount is 2^(32-prefix), the range of possible host addresses.
func (c CIDR) HostCount() uint64 {
	if c.Prefix >= 32 {
		return 1
	}
	return uint64(1) << uint(32-c.Prefix)
}

// hostMask is the bits that vary across the block.
func (c CIDR) hostMask() uint32 {
	if c.Prefix <= 0 {
		return 0xFFFFFFFF
	}
	if c.Prefix >= 32 {
		return 0
	}
	return 0xFFFFFFFF >> uint(c.Prefix)
}

// Contains reports whether a falls inside c.
func (c CIDR) Contains(a Address) bool {
	mask := ^c.hostMask()
	return uint32(a)&mask == uint32(c.Base)&mask
}

// RandomHost draws a uniformly random address from c's host range.
func (c CIDR) RandomHost(rng *rand.Rand) Address {
	mask := c.hostMask()
	netPart := uint32(c.Base) &^ mask
	hostPart := uint32(rng.Int63()) & mask
	return Address(netPart | hostPart)
}

// DefaultExcluded are the CIDR blocks never treated as public, matching
// the defaults in spec.md §3.
func DefaultExcluded() []CIDR {
	specs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"224.0.0.0/4",
		"240.0.0.0/4",
	}
	out := make([]CIDR, 0, len(specs))
	for _, s := range specs {
		c, _ := ParseCIDR(s)
		out = append(out, c)
	}
	return out
}

// IsPublic reports whether a falls outside every block in excluded.
func IsPublic(a Address, excluded []CIDR) bool {
	for _, c := range excluded {
		if c.Contains(a) {
			return false
		}
	}
	return true
}

// PopularRanges is the small fixed list of well-known anycast/hosting
// prefixes the popular-range draw strategy samples from. These rarely
// host Minecraft servers but cost almost nothing to poke at.
func PopularRanges() []CIDR {
	specs := []string{
		"1.1.1.0/24",
		"8.8.8.0/24",
		"104.16.0.0/13",
		"172.64.0.0/13",
		"151.101.0.0/16",
	}
	out := make([]CIDR, 0, len(specs))
	for _, s := range specs {
		c, _ := ParseCIDR(s)
		out = append(out, c)
	}
	return out
}
