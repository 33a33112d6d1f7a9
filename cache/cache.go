// Package cache implements the per-AFI, double-buffered nexthop cache:
// one trie generation active for lookups while the previous generation
// stays around for change detection, swapped once per scan. It plays
// the role of bgp_nexthop_cache_table / cache1_table / cache2_table and
// the bnct_init/_active/_inactive/_swap/_finish family of functions in
// bgpd/bgp_nexthop.c, using github.com/gaissmai/bart for the
// longest-prefix-match trie in place of a bgp_table radix tree.
package cache

import (
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/nexthop"
)

// Bnc is a nexthop cache entry: whether the BGP nexthop resolves, its
// IGP metric, and the list of IGP nexthops the routing service reported.
type Bnc struct {
	Valid         bool
	Metric        uint32
	Nexthops      nexthop.List
	Changed       bool
	MetricChanged bool
}

// NexthopNum returns len(Nexthops), derived rather than stored
// redundantly so the two can never drift out of lock-step.
func (b *Bnc) NexthopNum() int {
	return len(b.Nexthops)
}

// NewBnc returns a fresh, unresolved entry. A zero-nexthop resolver
// reply produces exactly this: a synthetic entry with Valid false.
func NewBnc() *Bnc {
	return &Bnc{}
}

// Different reports whether two entries would trigger change detection:
// true iff their nexthop counts differ or their lists differ
// position-wise.
func Different(a, b *Bnc) bool {
	return nexthop.Different(a.Nexthops, b.Nexthops)
}

// buffer is one generation of the nexthop cache trie for one AFI.
type buffer struct {
	table bart.Table[*Bnc]
}

func (buf *buffer) reset() {
	buf.table = bart.Table[*Bnc]{}
}

// Bnct is the double-buffered nexthop cache table for a single AFI.
// Exactly one buffer is active at any observable moment.
type Bnct struct {
	mu       sync.Mutex
	bufs     [2]*buffer
	activeIx int
}

// New allocates both buffers for an AFI with buf1 active
// (bnct_init in bgp_nexthop.c).
func New() *Bnct {
	return &Bnct{
		bufs: [2]*buffer{{}, {}},
	}
}

// Active returns the current generation's trie.
func (t *Bnct) Active() *bart.Table[*Bnc] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &t.bufs[t.activeIx].table
}

// Inactive returns the previous generation's trie, consulted only for
// change detection.
func (t *Bnct) Inactive() *bart.Table[*Bnc] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &t.bufs[1-t.activeIx].table
}

// Swap flips active ⟷ inactive. Called exactly once per scan, at scan
// start.
func (t *Bnct) Swap() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeIx = 1 - t.activeIx
}

// ResetInactive empties the now-inactive buffer so it's ready to become
// active next scan. Called exactly once per scan, at scan end, after it
// has been consulted for change detection.
func (t *Bnct) ResetInactive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bufs[1-t.activeIx].reset()
}

// Get looks up a host prefix in the active buffer.
func (t *Bnct) Get(p netip.Prefix) (*Bnc, bool) {
	return t.Active().Get(p)
}

// GetInactive looks up a host prefix in the inactive (previous
// generation) buffer.
func (t *Bnct) GetInactive(p netip.Prefix) (*Bnc, bool) {
	return t.Inactive().Get(p)
}

// Insert stores an entry in the active buffer at the given host prefix.
func (t *Bnct) Insert(p netip.Prefix, bnc *Bnc) {
	t.Active().Insert(p, bnc)
}

// Tables bundles a Bnct per AFI, one entry per bgp_nexthop_cache_table[AFI_MAX] slot.
type Tables struct {
	byAFI [afi.Max]*Bnct
}

// NewTables allocates a Bnct for every AFI.
func NewTables() *Tables {
	ts := &Tables{}
	for a := afi.AFI(0); a < afi.Max; a++ {
		ts.byAFI[a] = New()
	}
	return ts
}

// For returns the Bnct for the given AFI.
func (ts *Tables) For(a afi.AFI) *Bnct {
	return ts.byAFI[a]
}
