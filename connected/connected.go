// Package connected implements the ref-counted connected-prefix table
// and its onlink / multiaccess queries. It plays the role of
// bgp_connected_table, bgp_connected_add/_delete, bgp_nexthop_onlink
// and bgp_multiaccess_check_v4 in bgpd/bgp_nexthop.c, using
// github.com/gaissmai/bart in place of a bgp_table radix trie.
package connected

import (
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/slatepeak/bgpscan/afi"
)

// ref is the payload stored at each connected prefix: just a count of
// how many interfaces share it (bgp_connected_ref).
type ref struct {
	count uint32
}

// Table is the per-AFI ref-counted connected-prefix table.
type Table struct {
	byAFI [afi.Max]*bart.Table[*ref]
}

// New allocates an empty table for both AFIs.
func New() *Table {
	t := &Table{}
	for a := afi.AFI(0); a < afi.Max; a++ {
		t.byAFI[a] = &bart.Table[*ref]{}
	}
	return t
}

// Add records that an interface owns prefix p, masked to its network
// address. Zero prefixes (0.0.0.0/N) and IPv6 link-local/unspecified
// prefixes are ignored, matching bgp_connected_add's
// prefix_ipv4_any/IN6_IS_ADDR_UNSPECIFIED/IN6_IS_ADDR_LINKLOCAL guards;
// callers are expected to have already excluded loopback interfaces
// (bgp_connected_add's if_is_loopback check is the caller's job here,
// since this package has no notion of interfaces).
func (t *Table) Add(p netip.Prefix) {
	p = p.Masked()
	if ignorable(p) {
		return
	}
	a := afi.Of(p.Addr())
	tbl := t.byAFI[a]
	if r, ok := tbl.Get(p); ok {
		r.count++
		return
	}
	tbl.Insert(p, &ref{count: 1})
}

// Delete removes one interface's ownership of prefix p, freeing the
// entry once its refcount reaches zero (bgp_connected_delete).
func (t *Table) Delete(p netip.Prefix) {
	p = p.Masked()
	if ignorable(p) {
		return
	}
	a := afi.Of(p.Addr())
	tbl := t.byAFI[a]
	r, ok := tbl.Get(p)
	if !ok {
		return
	}
	r.count--
	if r.count == 0 {
		tbl.Delete(p)
	}
}

// ignorable reports whether a masked prefix should never be recorded
// as connected: prefix_ipv4_any (bgp_nexthop.c) tests the masked
// address against 0 for any prefix length, not just 0.0.0.0/0, so
// 0.0.0.0/8 is ignored exactly like 0.0.0.0/0.
func ignorable(p netip.Prefix) bool {
	addr := p.Addr()
	if addr.Is4() {
		return addr == netip.IPv4Unspecified()
	}
	return addr.IsUnspecified() || addr.IsLinkLocalUnicast()
}

// OnlinkIPv4 reports whether nexthop matches (longest-prefix) an
// address on a locally connected IPv4 interface (bgp_nexthop_onlink's
// AFI_IP branch).
func (t *Table) OnlinkIPv4(nexthop netip.Addr) bool {
	_, ok := t.byAFI[afi.IPv4].Lookup(nexthop)
	return ok
}

// OnlinkIPv6 reimplements bgp_nexthop_onlink's AFI_IP6 branch:
// mpNexthopLen is the length in bytes of the path's MP_REACH_NLRI
// nexthop attribute (16 for a single global address, 32 for
// global+link-local). A 32-byte nexthop is always onlink (the
// peer sent its own link-local address as an additional nexthop,
// which by definition is reachable over the connected link); a 16-byte
// nexthop is onlink if it is itself link-local, or else is looked up
// in the connected table.
func (t *Table) OnlinkIPv6(global netip.Addr, mpNexthopLen int) bool {
	if mpNexthopLen == 32 {
		return true
	}
	if mpNexthopLen != 16 {
		return false
	}
	if global.IsLinkLocalUnicast() {
		return true
	}
	_, ok := t.byAFI[afi.IPv6].Lookup(global)
	return ok
}

// MultiaccessCheckV4 reports whether nexthop and peerAddr resolve to
// the same connected-prefix entry (same broadcast/multiaccess segment).
// bgp_multiaccess_check_v4 does a longest-prefix match for each address
// and compares the two matched trie nodes by pointer identity; here the
// matched prefixes themselves stand in for node identity.
func (t *Table) MultiaccessCheckV4(nexthop, peerAddr netip.Addr) bool {
	tbl := t.byAFI[afi.IPv4]
	p1, _, ok1 := tbl.LookupPrefixLPM(netip.PrefixFrom(nexthop, 32))
	if !ok1 {
		return false
	}
	p2, _, ok2 := tbl.LookupPrefixLPM(netip.PrefixFrom(peerAddr, 32))
	if !ok2 {
		return false
	}
	return p1 == p2
}
