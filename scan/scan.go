// Package scan implements the periodic scan driver. It plays the role
// of bgp_scan/bgp_scan_timer in bgpd/bgp_nexthop.c: per AFI, swap the
// nexthop cache buffers, run IPv4 reverse-gate verification, walk the
// RIB resolving nexthops and flipping validity/IGP-changed flags, and
// drive the route engine.
package scan

import (
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/cache"
	"github.com/slatepeak/bgpscan/connected"
	"github.com/slatepeak/bgpscan/desync"
	"github.com/slatepeak/bgpscan/nexthop"
	"github.com/slatepeak/bgpscan/peer"
	"github.com/slatepeak/bgpscan/resolver"
	"github.com/slatepeak/bgpscan/rib"
	"github.com/slatepeak/bgpscan/timer"
)

// SAFI enumerates the sub-address-families prefix-limit enforcement
// runs over.
type SAFI int

const (
	SAFIUnicast SAFI = iota
	SAFIMulticast
	SAFIMPLSVPN
)

// PrefixLimiter is the route engine's prefix-limit enforcement
// (bgp_maximum_prefix_overflow), delegated to the embedding daemon.
type PrefixLimiter interface {
	CheckOverflow(p *peer.Peer, a afi.AFI, s SAFI)
}

// PeerSource supplies the peers the scan driver iterates for
// prefix-limit enforcement.
type PeerSource interface {
	Peers() []*peer.Peer
}

// Driver runs the periodic scan over every AFI's RIB.
type Driver struct {
	Enabled bool // false mirrors "no default BGP instance exists"

	Cache     *cache.Tables
	Connected *connected.Table
	Resolver  *resolver.Client
	RIB       [afi.Max]*rib.Table
	Engine    rib.RouteEngine
	Peers     PeerSource
	Limiter   PrefixLimiter

	timer  *timer.Timer
	logger *log.Entry
}

// New creates a driver whose scan timer is armed immediately and fires
// every interval (default 60s, valid range [5,60]s; callers are
// expected to validate the interval via config).
func New(interval time.Duration, cacheTables *cache.Tables, connectedTable *connected.Table, resolverClient *resolver.Client, ribTables [afi.Max]*rib.Table, engine rib.RouteEngine, peers PeerSource, limiter PrefixLimiter) *Driver {
	d := &Driver{
		Enabled:   true,
		Cache:     cacheTables,
		Connected: connectedTable,
		Resolver:  resolverClient,
		RIB:       ribTables,
		Engine:    engine,
		Peers:     peers,
		Limiter:   limiter,
		logger:    log.WithField("component", "scan"),
	}
	d.timer = timer.New(interval, d.fire)
	return d
}

// Reconfigure changes the scan interval, the equivalent of `bgp
// scan-time <5-60>`, cancelling and rescheduling the timer.
func (d *Driver) Reconfigure(interval time.Duration) {
	d.timer.Reset(interval)
}

// Stop cancels the scan timer.
func (d *Driver) Stop() {
	d.timer.Stop()
}

func (d *Driver) fire() {
	defer d.timer.Rearm()
	d.Run()
}

// Run executes one full scan cycle across both AFIs, in order IPv4
// then IPv6.
func (d *Driver) Run() {
	d.logger.Debug("performing scan")
	for a := afi.AFI(0); a < afi.Max; a++ {
		d.scanAFI(a)
	}
}

func (d *Driver) scanAFI(a afi.AFI) {
	bnct := d.Cache.For(a)
	bnct.Swap()

	if !d.Enabled {
		return
	}

	if d.Peers != nil {
		for _, p := range d.Peers.Peers() {
			if !p.Established() {
				continue
			}
			if d.Limiter != nil {
				d.Limiter.CheckOverflow(p, a, SAFIUnicast)
				d.Limiter.CheckOverflow(p, a, SAFIMulticast)
				d.Limiter.CheckOverflow(p, a, SAFIMPLSVPN)
			}
		}
	}

	var desyncTable *desync.Table
	if a == afi.IPv4 {
		desyncTable = desync.New()
		if d.Resolver != nil {
			pairs := d.buildRGatePairs(bnct)
			prefixes, err := d.Resolver.VerifyIPv4RGates(pairs)
			if err != nil {
				d.logger.WithError(err).Warn("rgate verification failed")
			}
			for _, dp := range prefixes {
				desyncTable.Mark(dp.Prefix)
			}
		}
	}

	table := d.RIB[a]
	if table != nil {
		table.All(func(dest *rib.Destination) bool {
			for _, info := range dest.Paths {
				if info.SubType != rib.SubTypeNormal {
					continue
				}
				d.scanPath(a, dest, info, desyncTable)
			}
			d.Engine.Process(a, dest)
			return true
		})
	}

	bnct.ResetInactive()
}

func (d *Driver) scanPath(a afi.AFI, dest *rib.Destination, info *rib.Info, desyncTable *desync.Table) {
	if a == afi.IPv4 && desyncTable != nil {
		if desyncTable.LongestMatch(dest.Prefix.Addr()) {
			info.SetFlag(rib.FlagIGPChanged)
			return
		}
	}

	var valid, changed, metricChanged bool
	if info.Peer != nil && info.Peer.DirectlyConnectedEBGP() {
		valid = d.onlink(a, info)
	} else {
		valid, changed, metricChanged = d.nexthopLookup(a, info)
	}
	_ = metricChanged

	current := info.HasFlag(rib.FlagValid)
	info.SetFlagIf(rib.FlagIGPChanged, changed)

	if valid != current {
		if current {
			d.Engine.AggregateDecrement(a, dest, info)
			info.ClearFlag(rib.FlagValid)
		} else {
			info.SetFlag(rib.FlagValid)
			d.Engine.AggregateIncrement(a, dest, info)
		}
	}

	if d.Engine.DampingEnabled(a) && info.Damping != nil {
		if info.Damping.Scan() {
			d.Engine.AggregateIncrement(a, dest, info)
		}
	}
}

func (d *Driver) onlink(a afi.AFI, info *rib.Info) bool {
	if a == afi.IPv4 {
		return d.Connected.OnlinkIPv4(info.Attr.Nexthop)
	}
	return d.Connected.OnlinkIPv6(info.Attr.Nexthop, info.Attr.MPNexthopLen)
}

// nexthopLookup resolves a path's nexthop against the IGP nexthop
// cache. It returns whether the nexthop resolves, and the
// changed/metric_changed flags for this scan; it also fills
// info.Extra.IGPMetric as a side effect.
func (d *Driver) nexthopLookup(a afi.AFI, info *rib.Info) (valid, changed, metricChanged bool) {
	if a == afi.IPv6 {
		if info.Attr.MPNexthopLen == 32 || (info.Attr.MPNexthopLen == 16 && info.Attr.Nexthop.IsLinkLocalUnicast()) {
			info.Extra.IGPMetric = 0
			return true, false, false
		}
	}

	bnct := d.Cache.For(a)
	p := afi.HostPrefix(info.Attr.Nexthop)

	bnc, ok := bnct.Get(p)
	if !ok {
		var answered bool
		bnc, answered = d.resolve(a, info.Attr.Nexthop)
		if answered {
			if old, hadOld := bnct.GetInactive(p); hadOld {
				bnc.Changed = cache.Different(bnc, old)
				bnc.MetricChanged = bnc.Metric != old.Metric
			}
		}
		bnct.Insert(p, bnc)
	}

	valid = bnc.Valid
	if valid && bnc.Metric > 0 {
		info.Extra.IGPMetric = bnc.Metric
	} else {
		info.Extra.IGPMetric = 0
	}
	return valid, bnc.Changed, bnc.MetricChanged
}

// resolve queries the routing service for addr. The second return
// value reports whether the routing service actually answered; on a
// transient failure (no resolver, a round-trip error, or the socket
// being closed) it is false and the returned Bnc is a synthetic
// unresolved entry that must not feed change detection, matching
// zlookup_query's null-reply handling in bgp_nexthop.c.
func (d *Driver) resolve(a afi.AFI, addr netip.Addr) (*cache.Bnc, bool) {
	if d.Resolver == nil {
		return cache.NewBnc(), false
	}
	bnc, err := d.Resolver.Lookup(a, addr)
	if err != nil || bnc == nil {
		return cache.NewBnc(), false
	}
	return bnc, true
}

// buildRGatePairs gathers, from the previous scan's generation of the
// IPv4 cache, one (bgp_nexthop, cached_rgate) pair per valid entry
// that has at least one IPv4 IGP nexthop — only the first IPv4 IGP
// nexthop of each entry is used; non-IPv4 nexthops are skipped.
func (d *Driver) buildRGatePairs(bnct *cache.Bnct) []resolver.RGatePair {
	var pairs []resolver.RGatePair
	for prefix, bnc := range bnct.Inactive().All() {
		if !bnc.Valid {
			continue
		}
		for _, nh := range bnc.Nexthops {
			if nh.Type != nexthop.TypeIPv4 {
				continue
			}
			gate4 := nh.Gate.To4()
			if gate4 == nil {
				continue
			}
			gate, ok := netip.AddrFromSlice(gate4)
			if !ok {
				continue
			}
			pairs = append(pairs, resolver.RGatePair{
				BGPNexthop:  prefix.Addr(),
				CachedRGate: gate,
			})
			break
		}
	}
	return pairs
}
