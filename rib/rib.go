// Package rib models the opaque boundary the scan and import drivers
// see into the BGP Loc-RIB: a prefix-keyed tree whose nodes carry a
// linked list of per-path route entries. Selection, attribute parsing,
// policy application and best-path computation all happen upstream of
// this package and are out of scope; it implements only the Loc-RIB
// slice the nexthop-tracking core touches (the Adj-RIBs-In/Loc-RIB/
// Adj-RIBs-Out split of RFC4271 §3.2 motivates the shape).
package rib

import (
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/peer"
)

// Flag is a bit in Info.Flags.
type Flag uint32

const (
	// FlagValid marks a route whose nexthop currently resolves
	// (BGP_INFO_VALID).
	FlagValid Flag = 1 << iota
	// FlagIGPChanged marks a route whose IGP-side resolution changed
	// this scan (BGP_INFO_IGP_CHANGED).
	FlagIGPChanged
)

// SubType distinguishes a normally-learned BGP path from other
// sub-types (aggregate, redistributed, etc.) the scan driver ignores.
type SubType int

const (
	SubTypeNormal SubType = iota
	SubTypeAggregate
	SubTypeOther
)

// Attr is the subset of path attributes the nexthop-tracking core
// reads: the advertised nexthop, and for IPv6 the MP_REACH_NLRI
// nexthop length that determines the onlink short-circuit.
type Attr struct {
	Nexthop      netip.Addr
	MPNexthopLen int // only meaningful when Nexthop is IPv6
}

// Extra carries the subset of bgp_info->extra's fields this core
// writes.
type Extra struct {
	IGPMetric uint32
}

// Info is one path attached to a RIB prefix (bgp_info). A prefix may
// have several, one per contributing peer.
type Info struct {
	Peer    *peer.Peer
	Attr    Attr
	SubType SubType
	Flags   Flag
	Extra   Extra

	// Damping is non-nil when damping is enabled and has penalty state
	// for this path; opaque to this package.
	Damping DampingInfo
}

func (i *Info) HasFlag(f Flag) bool { return i.Flags&f != 0 }
func (i *Info) SetFlag(f Flag)      { i.Flags |= f }
func (i *Info) ClearFlag(f Flag)    { i.Flags &^= f }

// SetFlagIf sets f when v is true and clears it otherwise, so
// IGP_CHANGED tracks this scan's outcome rather than only ever
// latching on.
func (i *Info) SetFlagIf(f Flag, v bool) {
	if v {
		i.SetFlag(f)
	} else {
		i.ClearFlag(f)
	}
}

// DampingInfo is an opaque handle to a path's flap-damping state;
// route-flap damping arithmetic is an out-of-scope collaborator. A nil
// DampingInfo means damping does not apply to this path.
type DampingInfo interface {
	// Scan re-evaluates the damping penalty and reports whether the
	// path was just reinstated (bgp_damp_scan's return value).
	Scan() bool
}

// Destination is one RIB node: a prefix plus every path attached to
// it.
type Destination struct {
	Prefix netip.Prefix
	Paths  []*Info
}

// Table is the per-AFI slice of the Loc-RIB this core walks.
type Table struct {
	trie bart.Table[*Destination]
}

// NewTable returns an empty RIB table for one AFI.
func NewTable() *Table {
	return &Table{}
}

// Insert attaches a destination at its prefix; used by tests and by
// whatever upstream component owns real route installation.
func (t *Table) Insert(d *Destination) {
	t.trie.Insert(d.Prefix, d)
}

// All iterates every destination in the table. Order is unspecified,
// matching bgp_table_top/bgp_route_next's lack of an ordering
// guarantee beyond prefix-tree structure; fn returning false stops
// iteration early.
func (t *Table) All(fn func(d *Destination) bool) {
	for _, d := range t.trie.All() {
		if !fn(d) {
			return
		}
	}
}

// LongestMatch returns the destination covering addr, if any.
func (t *Table) LongestMatch(addr netip.Addr) (*Destination, bool) {
	_, d, ok := t.trie.LookupPrefixLPM(netip.PrefixFrom(addr, addr.BitLen()))
	return d, ok
}

// RouteEngine is the callback boundary into the route engine:
// aggregate bookkeeping, damping, and bgp_process. The scan driver
// calls these; none of them are implemented here.
type RouteEngine interface {
	// AggregateIncrement is called when a path transitions into
	// BGP_INFO_VALID.
	AggregateIncrement(afi afi.AFI, d *Destination, i *Info)
	// AggregateDecrement is called when a path transitions out of
	// BGP_INFO_VALID.
	AggregateDecrement(afi afi.AFI, d *Destination, i *Info)
	// DampingEnabled reports whether flap damping applies to this
	// (afi, unicast) pair.
	DampingEnabled(afi afi.AFI) bool
	// Process is bgp_process: re-run best-path selection and
	// advertisement for a destination after its paths have been
	// updated.
	Process(afi afi.AFI, d *Destination)
}

// NullRouteEngine is a RouteEngine that does nothing; useful as a
// default when the surrounding daemon has not wired a real route
// engine yet (e.g. import-only deployments).
type NullRouteEngine struct{}

func (NullRouteEngine) AggregateIncrement(afi.AFI, *Destination, *Info) {}
func (NullRouteEngine) AggregateDecrement(afi.AFI, *Destination, *Info) {}
func (NullRouteEngine) DampingEnabled(afi.AFI) bool                     { return false }
func (NullRouteEngine) Process(afi.AFI, *Destination)                   {}
