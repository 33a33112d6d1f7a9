// Package importer implements the periodic import driver. It plays
// the role of bgp_import in bgpd/bgp_nexthop.c: revalidate every
// configured static route's IGP reachability, optionally via the
// routing service's import-check query, and install or withdraw it on
// a validity transition.
package importer

import (
	"net/netip"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/resolver"
	"github.com/slatepeak/bgpscan/timer"
)

// SAFI enumerates the sub-address-families bgp_import iterates:
// unicast and multicast only — mpls_vpn static routes are out of
// scope, matching bgp_import's `safi < SAFI_MPLS_VPN` loop bound.
type SAFI int

const (
	SAFIUnicast SAFI = iota
	SAFIMulticast
	safiCount
)

// StaticRoute is one statically configured route (struct bgp_static),
// restricted to the fields the import driver reads and writes.
type StaticRoute struct {
	Prefix netip.Prefix

	// Backdoor routes are never revalidated (bgp_static->backdoor).
	Backdoor bool

	// RouteMapName being non-empty forces a re-update on every import
	// scan even when IGP data is unchanged, since route-map evaluation
	// can still produce a different result.
	RouteMapName string

	Valid      bool
	IGPMetric  uint32
	IGPNexthop netip.Addr
}

// Installer is the callback boundary into static route installation:
// bgp_static_update/bgp_static_withdraw.
type Installer interface {
	StaticUpdate(a afi.AFI, s SAFI, r *StaticRoute)
	StaticWithdraw(a afi.AFI, s SAFI, r *StaticRoute)
}

// Table holds the statically configured routes the import driver
// walks, indexed by (afi, safi) the way bgp->route[afi][safi] is.
type Table struct {
	mu     sync.Mutex
	routes [afi.Max][safiCount]map[netip.Prefix]*StaticRoute
}

// NewTable returns an empty static-route table.
func NewTable() *Table {
	t := &Table{}
	for a := afi.AFI(0); a < afi.Max; a++ {
		for s := SAFI(0); s < safiCount; s++ {
			t.routes[a][s] = make(map[netip.Prefix]*StaticRoute)
		}
	}
	return t
}

// Add registers a static route under (a, s).
func (t *Table) Add(a afi.AFI, s SAFI, r *StaticRoute) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[a][s][r.Prefix] = r
}

// Remove deletes a static route.
func (t *Table) Remove(a afi.AFI, s SAFI, p netip.Prefix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.routes[a][s], p)
}

// All iterates every static route under (a, s); fn returning false
// stops iteration early.
func (t *Table) All(a afi.AFI, s SAFI, fn func(r *StaticRoute) bool) {
	t.mu.Lock()
	routes := make([]*StaticRoute, 0, len(t.routes[a][s]))
	for _, r := range t.routes[a][s] {
		routes = append(routes, r)
	}
	t.mu.Unlock()

	for _, r := range routes {
		if !fn(r) {
			return
		}
	}
}

// Driver runs the periodic import scan over every configured static
// route.
type Driver struct {
	Enabled bool

	// ImportCheckEnabled mirrors BGP_FLAG_IMPORT_CHECK: when set, IPv4
	// unicast routes are revalidated against the routing service
	// rather than being forced valid.
	ImportCheckEnabled bool

	Resolver  *resolver.Client
	Routes    *Table
	Installer Installer

	timer  *timer.Timer
	logger *log.Entry
}

// New creates a driver whose import timer is armed immediately and
// fires every interval (bgp_import_interval is freely configurable,
// with no [5,60] bound).
func New(interval time.Duration, importCheckEnabled bool, resolverClient *resolver.Client, routes *Table, installer Installer) *Driver {
	d := &Driver{
		Enabled:            true,
		ImportCheckEnabled: importCheckEnabled,
		Resolver:           resolverClient,
		Routes:             routes,
		Installer:          installer,
		logger:             log.WithField("component", "importer"),
	}
	d.timer = timer.New(interval, d.fire)
	return d
}

// Reconfigure changes the import interval.
func (d *Driver) Reconfigure(interval time.Duration) {
	d.timer.Reset(interval)
}

// Stop cancels the import timer.
func (d *Driver) Stop() {
	d.timer.Stop()
}

func (d *Driver) fire() {
	defer d.timer.Rearm()
	d.Run()
}

// Run executes one full import cycle across every (afi, safi) pair.
func (d *Driver) Run() {
	if !d.Enabled {
		return
	}
	d.logger.Debug("performing import scan")
	for a := afi.AFI(0); a < afi.Max; a++ {
		for s := SAFI(0); s < safiCount; s++ {
			d.Routes.All(a, s, func(r *StaticRoute) bool {
				d.importRoute(a, s, r)
				return true
			})
		}
	}
}

func (d *Driver) importRoute(a afi.AFI, s SAFI, r *StaticRoute) {
	if r.Backdoor {
		return
	}

	prevValid := r.Valid
	prevMetric := r.IGPMetric
	prevNexthop := r.IGPNexthop

	if d.ImportCheckEnabled && a == afi.IPv4 && s == SAFIUnicast && d.Resolver != nil {
		valid, metric, gw, hasGW := d.Resolver.ImportCheck(r.Prefix)
		r.Valid = valid
		r.IGPMetric = metric
		if hasGW {
			r.IGPNexthop = gw
		} else {
			r.IGPNexthop = netip.Addr{}
		}
	} else {
		r.Valid = true
		r.IGPMetric = 0
		r.IGPNexthop = netip.Addr{}
	}

	if r.Valid != prevValid {
		if r.Valid {
			d.Installer.StaticUpdate(a, s, r)
		} else {
			d.Installer.StaticWithdraw(a, s, r)
		}
		return
	}

	if r.Valid && (r.IGPMetric != prevMetric || r.IGPNexthop != prevNexthop || r.RouteMapName != "") {
		d.Installer.StaticUpdate(a, s, r)
	}
}
