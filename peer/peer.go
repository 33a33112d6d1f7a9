// Package peer models the minimal facts the nexthop-tracking core needs
// about a BGP peer. Session establishment, the FSM, policy application,
// and best-path selection belong to the BGP speaker itself and are out
// of scope here — the scan driver only ever asks a peer whether it is
// Established and whether it is a directly connected EBGP session
// (TTL 1).
package peer

import "net"

// Sort classifies a peer's relationship to the local AS.
type Sort int

const (
	// IBGP is a peer in the same autonomous system.
	IBGP Sort = iota
	// EBGP is a peer in a different autonomous system.
	EBGP
)

// State is the subset of FSM states the scan driver cares about.
type State int

const (
	Idle State = iota
	Connect
	Active
	OpenConfirm
	Established
)

// Peer is a remote BGP speaker as seen by the nexthop-tracking core.
type Peer struct {
	ASN  int32
	Addr net.IP

	state State
	sort  Sort
	// TTL is the configured multihop TTL for an EBGP session; 1 means
	// directly connected (ebgp-multihop is not in effect).
	TTL uint8
}

// New creates a peer in the Idle state.
func New(asn int32, addr string, sort Sort) *Peer {
	return &Peer{
		ASN:  asn,
		Addr: net.ParseIP(addr),
		sort: sort,
		TTL:  1,
	}
}

// SetState transitions the peer to the given FSM state. The core only
// ever reads this back through Established; the transition itself is
// driven by the (out of scope) session state machine.
func (p *Peer) SetState(s State) {
	p.state = s
}

// SetTTL records the configured multihop TTL.
func (p *Peer) SetTTL(ttl uint8) {
	p.TTL = ttl
}

// Established reports whether the peer's session is up.
func (p *Peer) Established() bool {
	return p.state == Established
}

// Sort returns whether this is an EBGP or IBGP peer.
func (p *Peer) Sort() Sort {
	return p.sort
}

// DirectlyConnectedEBGP reports whether the scan driver's onlink
// short-circuit applies: an EBGP peer with TTL exactly 1.
func (p *Peer) DirectlyConnectedEBGP() bool {
	return p.sort == EBGP && p.TTL == 1
}
