// Package network holds small IPv4 address-encoding helpers shared by
// the resolver's wire codec. BGP router-ID election and address
// resolution helpers are dropped; nothing in this core performs
// router-ID selection.
package network

import "encoding/binary"
import "net"

// IPToUint32 encodes an IPv4 address as a big-endian uint32, the wire
// representation used throughout the resolver protocol's u32 address
// fields.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

// Uint32ToIP converts a uint32 to a net.IP
func Uint32ToIP(i uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, i)
	return ip
}
