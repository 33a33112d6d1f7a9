package scan

import (
	"net/netip"
	"testing"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/cache"
	"github.com/slatepeak/bgpscan/connected"
	"github.com/slatepeak/bgpscan/desync"
	"github.com/slatepeak/bgpscan/nexthop"
	"github.com/slatepeak/bgpscan/peer"
	"github.com/slatepeak/bgpscan/resolver"
	"github.com/slatepeak/bgpscan/rib"
)

// fakeEngine is a RouteEngine test double recording aggregate
// transitions and Process calls.
type fakeEngine struct {
	increments int
	decrements int
	processed  int
	damping    bool
}

func (e *fakeEngine) AggregateIncrement(afi.AFI, *rib.Destination, *rib.Info) { e.increments++ }
func (e *fakeEngine) AggregateDecrement(afi.AFI, *rib.Destination, *rib.Info) { e.decrements++ }
func (e *fakeEngine) DampingEnabled(afi.AFI) bool                            { return e.damping }
func (e *fakeEngine) Process(afi.AFI, *rib.Destination)                      { e.processed++ }

func newDriver(engine rib.RouteEngine) *Driver {
	return &Driver{
		Enabled:   true,
		Cache:     cache.NewTables(),
		Connected: connected.New(),
		Resolver:  &resolver.Client{}, // zero value: no connection
		Engine:    engine,
	}
}

func TestScanAFISwapsBuffersExactlyOnce(t *testing.T) {
	d := newDriver(&fakeEngine{})
	bnct := d.Cache.For(afi.IPv4)
	before := bnct.Active()
	d.scanAFI(afi.IPv4)
	after := bnct.Active()
	if before == after {
		t.Fatal("expected Swap to flip the active buffer")
	}
}

func TestNexthopLookupUsesActiveCacheOnHit(t *testing.T) {
	d := newDriver(&fakeEngine{})
	nh := netip.MustParseAddr("10.0.0.1")
	bnct := d.Cache.For(afi.IPv4)
	cached := &cache.Bnc{Valid: true, Metric: 9, Nexthops: nexthop.List{nexthop.IPv4(mustIP4("10.0.0.2"))}}
	bnct.Insert(afi.HostPrefix(nh), cached)

	info := &rib.Info{Attr: rib.Attr{Nexthop: nh}}
	valid, changed, _ := d.nexthopLookup(afi.IPv4, info)
	if !valid {
		t.Error("expected cache hit to report valid")
	}
	if changed {
		t.Error("a cache hit should report the entry's own Changed, not force true")
	}
	if info.Extra.IGPMetric != 9 {
		t.Errorf("expected IGPMetric 9, got %d", info.Extra.IGPMetric)
	}
}

func TestNexthopLookupFallsBackWhenResolverUnavailable(t *testing.T) {
	d := newDriver(&fakeEngine{})
	nh := netip.MustParseAddr("10.0.0.1")
	info := &rib.Info{Attr: rib.Attr{Nexthop: nh}}

	valid, changed, metricChanged := d.nexthopLookup(afi.IPv4, info)
	if valid {
		t.Error("expected an unresolved entry when the resolver has no connection")
	}
	if changed || metricChanged {
		t.Error("a first-ever lookup with no previous generation should report no change")
	}
	if info.Extra.IGPMetric != 0 {
		t.Error("expected zero metric for an unresolved entry")
	}
}

// TestNexthopLookupUnansweredMissDoesNotLatchChange mirrors
// zlookup_query's null-reply handling: when the routing service gives
// no answer (here, simply because no resolver connection exists), the
// miss must not be compared against the inactive buffer at all, even
// though a previous generation held a different, valid entry.
// Otherwise a transient resolver failure would spuriously latch
// IGP_CHANGED on an unrelated, previously healthy route.
func TestNexthopLookupUnansweredMissDoesNotLatchChange(t *testing.T) {
	d := newDriver(&fakeEngine{})
	nh := netip.MustParseAddr("10.0.0.1")
	bnct := d.Cache.For(afi.IPv4)

	old := &cache.Bnc{Valid: true, Metric: 5, Nexthops: nexthop.List{nexthop.IPv4(mustIP4("10.0.0.2"))}}
	bnct.Insert(afi.HostPrefix(nh), old)
	bnct.Swap() // old generation is now inactive

	info := &rib.Info{Attr: rib.Attr{Nexthop: nh}}
	_, changed, metricChanged := d.nexthopLookup(afi.IPv4, info)
	if changed {
		t.Error("an unanswered lookup must not set changed against the inactive buffer")
	}
	if metricChanged {
		t.Error("an unanswered lookup must not set metricChanged against the inactive buffer")
	}
}

func TestIPv6LinkLocalShortCircuitBypassesCache(t *testing.T) {
	d := newDriver(&fakeEngine{})
	ll := netip.MustParseAddr("fe80::1")
	info := &rib.Info{Attr: rib.Attr{Nexthop: ll, MPNexthopLen: 16}}

	valid, changed, metricChanged := d.nexthopLookup(afi.IPv6, info)
	if !valid || changed || metricChanged {
		t.Errorf("expected valid=true changed=false metricChanged=false, got %v %v %v", valid, changed, metricChanged)
	}
	if _, ok := d.Cache.For(afi.IPv6).Get(afi.HostPrefix(ll)); ok {
		t.Error("link-local short-circuit must not touch the cache")
	}
}

func TestIPv6DoubleNexthopShortCircuit(t *testing.T) {
	d := newDriver(&fakeEngine{})
	global := netip.MustParseAddr("2001:db8::1")
	info := &rib.Info{Attr: rib.Attr{Nexthop: global, MPNexthopLen: 32}}

	valid, _, _ := d.nexthopLookup(afi.IPv6, info)
	if !valid {
		t.Error("a 32-byte MP_REACH_NLRI nexthop must always resolve")
	}
}

func TestOnlinkShortCircuitForDirectlyConnectedEBGP(t *testing.T) {
	engine := &fakeEngine{}
	d := newDriver(engine)
	d.Connected.Add(netip.MustParsePrefix("192.0.2.0/24"))

	p := peer.New(65001, "192.0.2.2", peer.EBGP)
	p.SetTTL(1)
	info := &rib.Info{
		Peer: p,
		Attr: rib.Attr{Nexthop: netip.MustParseAddr("192.0.2.1")},
	}
	dest := &rib.Destination{Prefix: netip.MustParsePrefix("203.0.113.0/24")}

	d.scanPath(afi.IPv4, dest, info, nil)
	if !info.HasFlag(rib.FlagValid) {
		t.Error("expected onlink nexthop to become valid")
	}
	if engine.increments != 1 {
		t.Errorf("expected exactly one aggregate increment, got %d", engine.increments)
	}
	if _, ok := d.Cache.For(afi.IPv4).Get(afi.HostPrefix(info.Attr.Nexthop)); ok {
		t.Error("the onlink path must never populate the nexthop cache")
	}
}

func TestDesyncLongestMatchSkipsRestOfChecks(t *testing.T) {
	engine := &fakeEngine{}
	d := newDriver(engine)
	desyncTable := desync.New()
	desyncTable.Mark(netip.MustParsePrefix("203.0.113.0/24"))

	info := &rib.Info{Attr: rib.Attr{Nexthop: netip.MustParseAddr("10.0.0.1")}}
	dest := &rib.Destination{Prefix: netip.MustParsePrefix("203.0.113.0/24")}

	d.scanPath(afi.IPv4, dest, info, desyncTable)
	if !info.HasFlag(rib.FlagIGPChanged) {
		t.Error("expected a desync match to set IGPChanged")
	}
	if info.HasFlag(rib.FlagValid) {
		t.Error("a desync short-circuit must not touch FlagValid")
	}
	if engine.increments != 0 || engine.decrements != 0 {
		t.Error("a desync short-circuit must not call into the route engine's aggregate bookkeeping")
	}
}

func TestAggregateTransitionOnlyFiresOnValidityChange(t *testing.T) {
	engine := &fakeEngine{}
	d := newDriver(engine)
	nh := netip.MustParseAddr("10.0.0.1")
	bnct := d.Cache.For(afi.IPv4)
	bnct.Insert(afi.HostPrefix(nh), &cache.Bnc{Valid: true, Metric: 1})

	info := &rib.Info{Attr: rib.Attr{Nexthop: nh}}
	dest := &rib.Destination{Prefix: netip.MustParsePrefix("203.0.113.0/24")}

	d.scanPath(afi.IPv4, dest, info, nil)
	if engine.increments != 1 {
		t.Fatalf("expected 1 increment after invalid->valid transition, got %d", engine.increments)
	}

	// Second scan with the same still-valid entry: no further transition.
	d.scanPath(afi.IPv4, dest, info, nil)
	if engine.increments != 1 {
		t.Errorf("expected no further increment while already valid, got %d", engine.increments)
	}
}

// TestValidToUnresolvedTransitionFiresDecrement covers a route that was
// valid whose nexthop lookup now yields an unresolved entry (here the
// routing service gives no answer, which produces the same unresolved
// Bnc as a zero-nexthop reply): the valid->invalid transition must
// fire exactly one aggregate decrement.
func TestValidToUnresolvedTransitionFiresDecrement(t *testing.T) {
	engine := &fakeEngine{}
	d := newDriver(engine)
	nh := netip.MustParseAddr("10.0.0.9")
	dest := &rib.Destination{Prefix: netip.MustParsePrefix("203.0.113.0/24")}
	info := &rib.Info{Attr: rib.Attr{Nexthop: nh}}
	info.SetFlag(rib.FlagValid)

	// No resolver connection and no prior cache entry: the lookup
	// resolves to an unresolved Bnc, so the path goes invalid.
	d.scanPath(afi.IPv4, dest, info, nil)

	if info.HasFlag(rib.FlagValid) {
		t.Error("expected the path to lose FlagValid once the nexthop no longer resolves")
	}
	if engine.decrements != 1 {
		t.Errorf("expected exactly one aggregate decrement, got %d", engine.decrements)
	}
	if engine.increments != 0 {
		t.Errorf("expected no increment on a valid->invalid transition, got %d", engine.increments)
	}
}

func TestBuildRGatePairsUsesFirstIPv4NexthopOfValidEntriesOnly(t *testing.T) {
	d := newDriver(&fakeEngine{})
	bnct := d.Cache.For(afi.IPv4)

	valid := netip.MustParseAddr("10.0.0.1")
	bnct.Insert(afi.HostPrefix(valid), &cache.Bnc{
		Valid: true,
		Nexthops: nexthop.List{
			nexthop.IPv4(mustIP4("10.0.0.9")),
			nexthop.IPv4(mustIP4("10.0.0.10")),
		},
	})
	invalid := netip.MustParseAddr("10.0.0.2")
	bnct.Insert(afi.HostPrefix(invalid), &cache.Bnc{Valid: false})

	bnct.Swap() // buildRGatePairs reads the inactive (previous) generation

	pairs := d.buildRGatePairs(bnct)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair from the single valid entry, got %d", len(pairs))
	}
	if pairs[0].BGPNexthop != valid {
		t.Errorf("unexpected bgp nexthop: %s", pairs[0].BGPNexthop)
	}
	if pairs[0].CachedRGate.String() != "10.0.0.9" {
		t.Errorf("expected the first IGP nexthop 10.0.0.9, got %s", pairs[0].CachedRGate)
	}
}

func mustIP4(s string) []byte {
	return netip.MustParseAddr(s).AsSlice()
}
