// Command bgpscand wires the nexthop-tracking core together: load
// configuration, connect to the routing service, and start the scan
// and import drivers.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/cache"
	"github.com/slatepeak/bgpscan/config"
	"github.com/slatepeak/bgpscan/connected"
	"github.com/slatepeak/bgpscan/importer"
	"github.com/slatepeak/bgpscan/peer"
	"github.com/slatepeak/bgpscan/resolver"
	"github.com/slatepeak/bgpscan/rib"
	"github.com/slatepeak/bgpscan/scan"
)

// staticPeerSource is a fixed peer list, standing in for the
// configuration-driven peer table a full BGP speaker would supply.
type staticPeerSource struct {
	peers []*peer.Peer
}

func (s *staticPeerSource) Peers() []*peer.Peer { return s.peers }

// noopLimiter never trips the prefix-count limit; the nexthop-tracking
// core delegates real enforcement to the BGP speaker it's embedded in.
type noopLimiter struct{}

func (noopLimiter) CheckOverflow(*peer.Peer, afi.AFI, scan.SAFI) {}

func main() {
	configPath := flag.String("config", "/etc/bgpscand.yml", "path to the YAML configuration file")
	flag.Parse()

	logger := log.WithField("component", "main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	resolverClient := resolver.New(cfg.ResolverSocket)
	defer resolverClient.Close()

	cacheTables := cache.NewTables()
	connectedTable := connected.New()
	var ribTables [afi.Max]*rib.Table
	for a := afi.AFI(0); a < afi.Max; a++ {
		ribTables[a] = rib.NewTable()
	}

	scanDriver := scan.New(
		cfg.ScanInterval(),
		cacheTables,
		connectedTable,
		resolverClient,
		ribTables,
		rib.NullRouteEngine{},
		&staticPeerSource{},
		noopLimiter{},
	)
	defer scanDriver.Stop()

	importDriver := importer.New(
		cfg.ImportInterval(),
		cfg.ImportCheck,
		resolverClient,
		importer.NewTable(),
		noopInstaller{},
	)
	defer importDriver.Stop()

	logger.Info("bgpscand started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("bgpscand shutting down")
}

// noopInstaller leaves static-route installation to the BGP speaker
// this core is embedded in; here it only logs the transition.
type noopInstaller struct{}

func (noopInstaller) StaticUpdate(a afi.AFI, s importer.SAFI, r *importer.StaticRoute) {
	log.WithFields(log.Fields{"afi": a, "prefix": r.Prefix}).Debug("static route update")
}

func (noopInstaller) StaticWithdraw(a afi.AFI, s importer.SAFI, r *importer.StaticRoute) {
	log.WithFields(log.Fields{"afi": a, "prefix": r.Prefix}).Debug("static route withdraw")
}
