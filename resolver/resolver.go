// Package resolver implements the framed client connection to the
// routing service. It plays the role of the zclient_* request/reply
// pairs in bgpd/bgp_nexthop.c (zlookup_query, zlookup_query_ipv6,
// bgp_import_check, send_rgates/verify_ipv4_rgates) over a Unix domain
// socket, in the style of the zebra client in server/zclient.go: a
// single long-lived connection, one outstanding request at a time,
// structured logging on every protocol error.
package resolver

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slatepeak/bgpscan/afi"
	"github.com/slatepeak/bgpscan/cache"
	"github.com/slatepeak/bgpscan/network"
	"github.com/slatepeak/bgpscan/nexthop"
	"github.com/slatepeak/bgpscan/stream"
	"github.com/slatepeak/bgpscan/timer"
)

// Command identifies a routing-service request/reply pair.
type Command uint16

const (
	CommandIPv4NexthopLookup Command = iota + 1
	CommandIPv6NexthopLookup
	CommandIPv4ImportLookup
	CommandIPv4RgateVerify
)

const (
	// marker and version are fixed header constants; a reply carrying
	// anything else is discarded.
	marker  = 0xff
	version = 1

	// headerSize is length:u16 + marker:u8 + version:u8 + command:u16.
	headerSize = 6

	// maxPacket bounds a single frame, mirroring ZEBRA_MAX_PACKET_SIZ.
	maxPacket = 4096

	// rgateBatchCap is the per-frame entry cap for IPV4_RGATE_VERIFY
	// requests: ⌊(MAX_PACKET − HEADER − 3)/8⌋, 3 bytes for
	// morefollows+n and 8 bytes per (bgp_nh, cached_rgate) pair.
	rgateBatchCap = (maxPacket - headerSize - 3) / 8
)

// RGatePair is one (BGP nexthop, cached IGP gateway) submitted for
// reverse-gate verification.
type RGatePair struct {
	BGPNexthop   netip.Addr
	CachedRGate  netip.Addr
}

// DesyncPrefix is one entry of an IPV4_RGATE_VERIFY reply: a prefix
// whose cached rgate no longer matches the routing service's view.
type DesyncPrefix struct {
	Prefix netip.Prefix
}

// Client is a single bidirectional connection to the routing service.
type Client struct {
	mu   sync.Mutex
	addr string
	conn net.Conn

	reconnect     *timer.Timer
	reconnectWait time.Duration

	logger *log.Entry
}

// New creates a client for the routing service listening on a Unix
// socket at addr (the ZEBRA_SERV_PATH analogue). Connection happens
// asynchronously: the socket is opened in the background on startup.
func New(addr string) *Client {
	c := &Client{
		addr:          addr,
		reconnectWait: 3 * time.Second,
		logger:        log.WithField("component", "resolver"),
	}
	c.scheduleConnect(0)
	return c
}

func (c *Client) scheduleConnect(delay time.Duration) {
	connect := func() {
		if err := c.dial(); err != nil {
			c.logger.WithError(err).Warn("routing service connect failed, will retry")
			c.scheduleConnect(c.reconnectWait)
			return
		}
		c.logger.Info("connected to routing service")
	}
	if delay == 0 {
		go connect()
		return
	}
	c.mu.Lock()
	if c.reconnect == nil {
		c.reconnect = timer.New(delay, connect)
	} else {
		c.reconnect.Reset(delay)
	}
	c.mu.Unlock()
}

func (c *Client) dial() error {
	conn, err := net.Dial("unix", c.addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// closeLocked declares the connection failed and schedules a
// reconnect: once writes start failing, a reconnect gets re-scheduled
// rather than retried in place.
func (c *Client) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	go c.scheduleConnect(c.reconnectWait)
}

// connected reports whether the socket is currently open.
func (c *Client) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// roundTrip writes one frame and reads exactly one reply frame: a
// write-with-retry / exactly-two-reads policy under a FIFO
// single-outstanding-request model.
func (c *Client) roundTrip(cmd Command, payload *bytes.Buffer) (Command, *bytes.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return 0, nil, errSocketClosed
	}
	if err := c.writeFrameLocked(cmd, payload); err != nil {
		return 0, nil, err
	}
	return c.readFrameLocked()
}

// writeFrameLocked serializes and writes a single frame. Caller holds
// c.mu and has already checked c.conn != nil.
func (c *Client) writeFrameLocked(cmd Command, payload *bytes.Buffer) error {
	frame := encodeFrame(cmd, payload)
	if err := writeFull(c.conn, frame); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

// readFrameLocked performs the exactly-two-reads policy: first the
// 2-byte length, then the remainder. Caller holds c.mu and has already
// checked c.conn != nil.
func (c *Client) readFrameLocked() (Command, *bytes.Buffer, error) {
	lenBytes, err := stream.Read(c.conn, 2)
	if err != nil {
		c.closeLocked()
		return 0, nil, err
	}
	length := int(lenBytes[0])<<8 | int(lenBytes[1])
	if length < headerSize {
		c.logger.Warnf("routing service reply length %d shorter than header, closing connection", length)
		c.closeLocked()
		return 0, nil, fmt.Errorf("resolver: frame length %d shorter than header", length)
	}

	rest, err := stream.Read(c.conn, length-2)
	if err != nil {
		c.closeLocked()
		return 0, nil, err
	}

	buf := bytes.NewBuffer(rest)
	gotMarker := stream.ReadByte(buf)
	gotVersion := stream.ReadByte(buf)
	gotCmd := Command(stream.ReadUint16(buf))
	if gotMarker != marker || gotVersion != version {
		c.logger.Warnf("routing service reply marker/version mismatch (%x/%x), discarding frame", gotMarker, gotVersion)
		return 0, nil, errProtocolMismatch
	}
	return gotCmd, buf, nil
}

func encodeFrame(cmd Command, payload *bytes.Buffer) []byte {
	frame := &bytes.Buffer{}
	length := uint16(headerSize + payload.Len())
	stream.WriteUint16(frame, length)
	stream.WriteByte(frame, marker)
	stream.WriteByte(frame, version)
	stream.WriteUint16(frame, uint16(cmd))
	stream.WriteBytes(frame, payload.Bytes())
	return frame.Bytes()
}

func writeFull(conn net.Conn, b []byte) error {
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("resolver: short write to routing service")
		}
		b = b[n:]
	}
	return nil
}

var (
	errSocketClosed     = fmt.Errorf("resolver: socket closed")
	errProtocolMismatch = fmt.Errorf("resolver: protocol marker/version mismatch")
)

// Lookup performs an IPV4_NEXTHOP_LOOKUP or IPV6_NEXTHOP_LOOKUP query
// for addr and returns the resulting cache entry. A nil Bnc (no error)
// means "no answer" — the caller treats it as unresolved, never as a
// Go error worth surfacing further.
func (c *Client) Lookup(a afi.AFI, addr netip.Addr) (*cache.Bnc, error) {
	payload := &bytes.Buffer{}
	if a == afi.IPv4 {
		stream.WriteUint32(payload, network.IPToUint32(net.IP(addr.AsSlice())))
	} else {
		stream.WriteBytes(payload, addr.AsSlice())
	}

	cmd := CommandIPv4NexthopLookup
	if a == afi.IPv6 {
		cmd = CommandIPv6NexthopLookup
	}

	_, reply, err := c.roundTrip(cmd, payload)
	if err != nil {
		return nil, nil
	}
	return decodeLookupReply(a, reply), nil
}

func decodeLookupReply(a afi.AFI, buf *bytes.Buffer) *cache.Bnc {
	if a == afi.IPv4 {
		stream.ReadUint32(buf)
	} else {
		stream.ReadBytes(16, buf)
	}
	metric := stream.ReadUint32(buf)
	n := stream.ReadByte(buf)

	bnc := cache.NewBnc()
	bnc.Metric = metric
	for i := byte(0); i < n; i++ {
		bnc.Nexthops = append(bnc.Nexthops, decodeNexthop(buf))
	}
	bnc.Valid = len(bnc.Nexthops) > 0
	return bnc
}

func decodeNexthop(buf *bytes.Buffer) nexthop.Nexthop {
	t := nexthop.Type(stream.ReadByte(buf))
	switch t {
	case nexthop.TypeIPv4:
		return nexthop.IPv4(network.Uint32ToIP(stream.ReadUint32(buf)))
	case nexthop.TypeIfindex:
		return nexthop.Ifindex(stream.ReadUint32(buf))
	case nexthop.TypeIfname:
		return nexthop.Ifname(stream.ReadUint32(buf))
	case nexthop.TypeIPv6:
		return nexthop.IPv6(net.IP(stream.ReadBytes(16, buf)))
	case nexthop.TypeIPv6Ifindex:
		gate := net.IP(stream.ReadBytes(16, buf))
		return nexthop.IPv6Ifindex(gate, stream.ReadUint32(buf))
	case nexthop.TypeIPv6Ifname:
		gate := net.IP(stream.ReadBytes(16, buf))
		return nexthop.IPv6Ifname(gate, stream.ReadUint32(buf))
	default:
		return nexthop.Nexthop{Type: t}
	}
}

// ImportCheck performs an IPV4_IMPORT_LOOKUP for prefix p, returning
// whether it resolves, the IGP metric, and the first nexthop if it is
// IPv4. When the socket is closed, falls back to valid=true, metric=0
// so a static route is never held down just because the routing
// service connection dropped.
func (c *Client) ImportCheck(p netip.Prefix) (valid bool, metric uint32, gw netip.Addr, hasGW bool) {
	if !c.connected() {
		return true, 0, netip.Addr{}, false
	}

	payload := &bytes.Buffer{}
	stream.WriteByte(payload, byte(p.Bits()))
	stream.WriteUint32(payload, network.IPToUint32(net.IP(p.Addr().AsSlice())))

	_, reply, err := c.roundTrip(CommandIPv4ImportLookup, payload)
	if err != nil {
		return true, 0, netip.Addr{}, false
	}

	stream.ReadUint32(reply)
	metric = stream.ReadUint32(reply)
	n := stream.ReadByte(reply)
	valid = n > 0
	for i := byte(0); i < n; i++ {
		nh := decodeNexthop(reply)
		if i == 0 && nh.Type == nexthop.TypeIPv4 {
			if addr, ok := netip.AddrFromSlice(nh.Gate.To4()); ok {
				gw, hasGW = addr, true
			}
		}
	}
	return valid, metric, gw, hasGW
}

// VerifyIPv4RGates submits pairs for reverse-gate verification,
// batching at rgateBatchCap per request frame with morefollows
// semantics (all request frames are written first), then drains reply
// frames until one arrives with morefollows=0 — exactly
// verify_ipv4_rgates' "send_rgates(...) ; while
// (recv_verified_desync_prefixes(pfxlist));" shape. If the socket is
// closed this is a silent no-op, matching §7.
func (c *Client) VerifyIPv4RGates(pairs []RGatePair) ([]DesyncPrefix, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, nil
	}

	batches := chunk(pairs, rgateBatchCap)
	if len(batches) == 0 {
		batches = [][]RGatePair{nil}
	}
	for i, batch := range batches {
		more := byte(0)
		if i < len(batches)-1 {
			more = 1
		}
		payload := &bytes.Buffer{}
		stream.WriteByte(payload, more)
		stream.WriteUint16(payload, uint16(len(batch)))
		for _, pr := range batch {
			stream.WriteUint32(payload, network.IPToUint32(net.IP(pr.BGPNexthop.AsSlice())))
			stream.WriteUint32(payload, network.IPToUint32(net.IP(pr.CachedRGate.AsSlice())))
		}
		if err := c.writeFrameLocked(CommandIPv4RgateVerify, payload); err != nil {
			return nil, err
		}
	}

	var result []DesyncPrefix
	seen := make(map[netip.Prefix]struct{})
	for {
		_, reply, err := c.readFrameLocked()
		if err != nil {
			return result, err
		}
		prefixes, moreFollows := decodeRGateReply(reply)
		for _, dp := range prefixes {
			if _, dup := seen[dp.Prefix]; dup {
				c.logger.Warnf("duplicate desync prefix %s in rgate reply, keeping first", dp.Prefix)
				continue
			}
			seen[dp.Prefix] = struct{}{}
			result = append(result, dp)
		}
		if moreFollows == 0 {
			break
		}
	}
	return result, nil
}

func chunk(pairs []RGatePair, size int) [][]RGatePair {
	var out [][]RGatePair
	for offset := 0; offset < len(pairs); offset += size {
		end := offset + size
		if end > len(pairs) {
			end = len(pairs)
		}
		out = append(out, pairs[offset:end])
	}
	return out
}

func decodeRGateReply(buf *bytes.Buffer) ([]DesyncPrefix, byte) {
	moreFollows := stream.ReadByte(buf)
	n := stream.ReadUint16(buf)
	out := make([]DesyncPrefix, 0, n)
	for i := uint16(0); i < n; i++ {
		addr := network.Uint32ToIP(stream.ReadUint32(buf))
		bits := stream.ReadByte(buf)
		a, ok := netip.AddrFromSlice(addr.To4())
		if !ok {
			continue
		}
		out = append(out, DesyncPrefix{Prefix: netip.PrefixFrom(a, int(bits))})
	}
	return out, moreFollows
}

// Close tears down the connection and cancels any pending reconnect.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
