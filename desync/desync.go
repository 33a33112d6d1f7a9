// Package desync implements the scratch prefix table populated by
// reverse-gate verification and consulted once per IPv4 scan to flag
// routes whose cached IGP gateway has drifted from the routing
// service's current view. It is a simplified, presence-only radix trie
// over prefix edges: a full next-hop-per-edge trie would work too, but
// a desync table only ever needs "is there a covering prefix", so the
// payload is dropped and Insert/Lookup trimmed to that single
// question.
package desync

import (
	"net/netip"

	log "github.com/sirupsen/logrus"
)

type node struct {
	edges []*edge
}

type edge struct {
	target *node
	prefix netip.Prefix
}

func (n *node) leaf() bool {
	return len(n.edges) == 0
}

// Table is a scratch longest-match prefix set, rebuilt fresh for each
// scan (bgp_scan allocates a fresh desync table, passes it to
// verify_ipv4_rgates, consults it during the RIB walk, then discards
// it).
type Table struct {
	root  *node
	marks map[netip.Prefix]struct{}
}

// New returns an empty table.
func New() *Table {
	return &Table{root: &node{}, marks: make(map[netip.Prefix]struct{})}
}

// Mark records that the routing service reported a desynchronized
// rgate for prefix p. Duplicate marks for the same prefix are
// tolerated: the first is kept and the rest logged and dropped.
func (t *Table) Mark(p netip.Prefix) {
	if _, dup := t.marks[p]; dup {
		log.WithField("component", "desync").
			Warnf("duplicate desync prefix %s in rgate reply, keeping first", p)
		return
	}
	t.marks[p] = struct{}{}
	t.insert(p)
}

func (t *Table) insert(p netip.Prefix) {
	best := t.lookupEdge(t.root, p)
	var parent *node
	if best == nil {
		parent = t.root
	} else if best.prefix == p {
		return
	} else {
		parent = best.target
	}
	fresh := &edge{target: &node{}, prefix: p}
	parent.edges = append(parent.edges, fresh)
	kept := parent.edges[:0]
	for _, e := range parent.edges {
		if e != fresh && e.prefix != p && p.Contains(e.prefix.Addr()) && e.prefix.Bits() > p.Bits() {
			fresh.target.edges = append(fresh.target.edges, e)
			continue
		}
		kept = append(kept, e)
	}
	parent.edges = kept
}

func (t *Table) lookupEdge(n *node, p netip.Prefix) *edge {
	var best *edge
	for _, e := range n.edges {
		if e.prefix.Bits() <= p.Bits() && e.prefix.Contains(p.Addr()) {
			best = e
			if next := t.lookupEdge(e.target, p); next != nil {
				return next
			}
			return best
		}
	}
	return best
}

// LongestMatch reports whether some marked prefix covers addr.
func (t *Table) LongestMatch(addr netip.Addr) bool {
	return t.lookupEdge(t.root, netip.PrefixFrom(addr, addr.BitLen())) != nil
}

// Len returns the number of distinct marked prefixes.
func (t *Table) Len() int {
	return len(t.marks)
}
