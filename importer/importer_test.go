package importer

import (
	"net/netip"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/resolver"
)

type fakeInstaller struct {
	updates    int
	withdrawals int
}

func (f *fakeInstaller) StaticUpdate(afi.AFI, SAFI, *StaticRoute)   { f.updates++ }
func (f *fakeInstaller) StaticWithdraw(afi.AFI, SAFI, *StaticRoute) { f.withdrawals++ }

func newDriver(checkEnabled bool, installer Installer) (*Driver, *Table) {
	routes := NewTable()
	d := &Driver{
		Enabled:            true,
		ImportCheckEnabled: checkEnabled,
		Resolver:           &resolver.Client{},
		Routes:             routes,
		Installer:          installer,
		logger:             log.WithField("component", "test"),
	}
	return d, routes
}

func TestBackdoorRoutesAreNeverRevalidated(t *testing.T) {
	installer := &fakeInstaller{}
	d, routes := newDriver(false, installer)
	r := &StaticRoute{Prefix: netip.MustParsePrefix("10.0.0.0/24"), Backdoor: true}
	routes.Add(afi.IPv4, SAFIUnicast, r)

	d.Run()
	if installer.updates != 0 || installer.withdrawals != 0 {
		t.Error("a backdoor route must never be installed or withdrawn by the import scan")
	}
}

func TestNonCheckedRouteIsForcedValid(t *testing.T) {
	installer := &fakeInstaller{}
	d, routes := newDriver(false, installer)
	r := &StaticRoute{Prefix: netip.MustParsePrefix("10.0.0.0/24")}
	routes.Add(afi.IPv4, SAFIUnicast, r)

	d.Run()
	if !r.Valid || r.IGPMetric != 0 || r.IGPNexthop.IsValid() {
		t.Errorf("expected forced valid/metric=0/no nexthop, got valid=%v metric=%d nexthop=%v", r.Valid, r.IGPMetric, r.IGPNexthop)
	}
	if installer.updates != 1 {
		t.Errorf("expected one install on the invalid->valid transition, got %d", installer.updates)
	}
}

func TestMPLSVPNSafiIsNeverIterated(t *testing.T) {
	if safiCount != 2 {
		t.Fatalf("expected exactly two safis (unicast, multicast), got %d", safiCount)
	}
}

func TestValidStaysValidNoReinstallWithoutChange(t *testing.T) {
	installer := &fakeInstaller{}
	d, routes := newDriver(false, installer)
	r := &StaticRoute{Prefix: netip.MustParsePrefix("10.0.0.0/24")}
	routes.Add(afi.IPv4, SAFIUnicast, r)

	d.Run()
	if installer.updates != 1 {
		t.Fatalf("expected one install on first scan, got %d", installer.updates)
	}
	d.Run()
	if installer.updates != 1 {
		t.Errorf("expected no reinstall when nothing changed, got %d", installer.updates)
	}
}

func TestRouteMapNameForcesReinstallEvenWithoutChange(t *testing.T) {
	installer := &fakeInstaller{}
	d, routes := newDriver(false, installer)
	r := &StaticRoute{Prefix: netip.MustParsePrefix("10.0.0.0/24"), RouteMapName: "SET-MED"}
	routes.Add(afi.IPv4, SAFIUnicast, r)

	d.Run()
	d.Run()
	if installer.updates != 2 {
		t.Errorf("expected a reinstall on every scan while a route-map is attached, got %d", installer.updates)
	}
}

func TestImportCheckOnlyAppliesToIPv4Unicast(t *testing.T) {
	installer := &fakeInstaller{}
	d, routes := newDriver(true, installer)
	v6 := &StaticRoute{Prefix: netip.MustParsePrefix("2001:db8::/32")}
	routes.Add(afi.IPv6, SAFIUnicast, v6)
	multicast := &StaticRoute{Prefix: netip.MustParsePrefix("10.0.0.0/24")}
	routes.Add(afi.IPv4, SAFIMulticast, multicast)

	d.Run()
	if !v6.Valid || !multicast.Valid {
		t.Error("routes outside (IPv4, unicast) must be forced valid even with ImportCheck enabled")
	}
}
