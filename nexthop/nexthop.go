// Package nexthop defines the tagged nexthop variant carried by a
// resolver reply and stored in a cache entry.
package nexthop

import "net"

// Type tags which fields of a Nexthop are meaningful.
type Type uint8

const (
	// TypeIPv4 carries an IGP gateway address only.
	TypeIPv4 Type = iota
	// TypeIPv6 carries an IGP gateway address only.
	TypeIPv6
	// TypeIfindex carries an interface index only.
	TypeIfindex
	// TypeIfname carries an interface index resolved from a name.
	TypeIfname
	// TypeIPv6Ifindex carries a gateway address and an interface index.
	TypeIPv6Ifindex
	// TypeIPv6Ifname carries a gateway address and an interface index
	// resolved from a name.
	TypeIPv6Ifname
)

// Nexthop is one IGP nexthop as reported by the routing service. Only
// the fields relevant to its Type are populated; Equal compares tag
// plus those fields, treating unknown tags as equal-if-same-tag.
type Nexthop struct {
	Type    Type
	Gate    net.IP
	Ifindex uint32

	// RGate is the IGP gateway the routing service previously reported
	// for this BGP nexthop, used only by the reverse-gate verification
	// path. It does not participate in Equal.
	RGate net.IP
}

// IPv4 constructs an IPv4 gateway-only nexthop.
func IPv4(gate net.IP) Nexthop { return Nexthop{Type: TypeIPv4, Gate: gate} }

// IPv6 constructs an IPv6 gateway-only nexthop.
func IPv6(gate net.IP) Nexthop { return Nexthop{Type: TypeIPv6, Gate: gate} }

// Ifindex constructs an interface-only nexthop.
func Ifindex(idx uint32) Nexthop { return Nexthop{Type: TypeIfindex, Ifindex: idx} }

// Ifname constructs an interface-only nexthop resolved from a name.
func Ifname(idx uint32) Nexthop { return Nexthop{Type: TypeIfname, Ifindex: idx} }

// IPv6Ifindex constructs a combined gateway+interface nexthop.
func IPv6Ifindex(gate net.IP, idx uint32) Nexthop {
	return Nexthop{Type: TypeIPv6Ifindex, Gate: gate, Ifindex: idx}
}

// IPv6Ifname constructs a combined gateway+interface nexthop resolved
// from a name.
func IPv6Ifname(gate net.IP, idx uint32) Nexthop {
	return Nexthop{Type: TypeIPv6Ifname, Gate: gate, Ifindex: idx}
}

// Equal reports whether two nexthops carry the same tag and fields, the
// same notion of identity bgp_nexthop_same() uses in bgp_nexthop.c.
func (n Nexthop) Equal(o Nexthop) bool {
	if n.Type != o.Type {
		return false
	}
	switch n.Type {
	case TypeIPv4, TypeIPv6:
		return n.Gate.Equal(o.Gate)
	case TypeIfindex, TypeIfname:
		return n.Ifindex == o.Ifindex
	case TypeIPv6Ifindex, TypeIPv6Ifname:
		return n.Gate.Equal(o.Gate) && n.Ifindex == o.Ifindex
	default:
		// Unknown tags are treated as equal-if-same-tag.
		return true
	}
}

// List is an ordered list of nexthops. bgp_nexthop_cache links these
// with prev/next pointers, which buys nothing here: equality and
// iteration are the only operations a Bnc performs on its nexthop set,
// so a plain slice keyed by insertion order is sufficient.
type List []Nexthop

// Different reports whether two lists differ in length or position-wise
// content (bgp_nexthop_cache_different in bgp_nexthop.c).
func Different(a, b List) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return true
		}
	}
	return false
}
