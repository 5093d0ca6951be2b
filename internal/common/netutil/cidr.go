// Package netutil provides IP address range matching for EntraGuard
package netutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Range is a parsed CIDR range ready for matching. An address only matches
// a range of the same IP version.
type Range struct {
	CIDR   string
	ip     net.IP
	prefix int
	v4     bool
}

// ParseRange parses a CIDR string into a Range
func ParseRange(cidr string) (Range, error) {
	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("invalid CIDR %q: missing prefix length", cidr)
	}

	ip := net.ParseIP(parts[0])
	if ip == nil {
		return Range{}, fmt.Errorf("invalid CIDR %q: bad address", cidr)
	}

	prefix, err := strconv.Atoi(parts[1])
	if err != nil {
		return Range{}, fmt.Errorf("invalid CIDR %q: bad prefix length", cidr)
	}

	v4 := ip.To4() != nil
	maxPrefix := 128
	if v4 {
		maxPrefix = 32
	}
	if prefix < 0 || prefix > maxPrefix {
		return Range{}, fmt.Errorf("invalid CIDR %q: prefix out of range", cidr)
	}

	return Range{CIDR: cidr, ip: ip, prefix: prefix, v4: v4}, nil
}

// ParseRanges parses a list of CIDR strings. Malformed entries are skipped
// with a warning, never fatal.
func ParseRanges(cidrs []string, logger *zap.Logger) []Range {
	if logger == nil {
		logger = zap.NewNop()
	}

	ranges := make([]Range, 0, len(cidrs))
	for _, cidr := range cidrs {
		r, err := ParseRange(cidr)
		if err != nil {
			logger.Warn("Skipping malformed CIDR range",
				zap.String("cidr", cidr),
				zap.Error(err),
			)
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}

// Contains reports whether addr falls inside the range. Addresses of a
// different IP version than the range never match.
func (r Range) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	if r.v4 {
		ip4 := ip.To4()
		if ip4 == nil {
			return false
		}
		return containsV4(r.ip.To4(), r.prefix, ip4)
	}

	if ip.To4() != nil {
		return false
	}
	return containsV6(r.ip.To16(), r.prefix, ip.To16())
}

// AnyContains reports whether addr falls inside any of the given ranges
func AnyContains(ranges []Range, addr string) bool {
	for _, r := range ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// containsV4 matches using 32-bit mask arithmetic
func containsV4(network net.IP, prefix int, ip net.IP) bool {
	var mask uint32
	if prefix > 0 {
		mask = ^uint32(0) << (32 - prefix)
	}
	return ipv4ToUint32(network)&mask == ipv4ToUint32(ip)&mask
}

// containsV6 compares whole prefix bytes, then masks the partial byte
func containsV6(network net.IP, prefix int, ip net.IP) bool {
	fullBytes := prefix / 8
	remBits := prefix % 8

	for i := 0; i < fullBytes; i++ {
		if network[i] != ip[i] {
			return false
		}
	}

	if remBits > 0 {
		mask := byte(0xFF << (8 - remBits))
		if network[fullBytes]&mask != ip[fullBytes]&mask {
			return false
		}
	}

	return true
}

func ipv4ToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}
