package geo

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindResolver resolves locations from local MaxMind GeoLite2 databases.
// The ASN database is optional; without it the ASN fields stay empty.
type MaxMindResolver struct {
	cityReader *geoip2.Reader
	asnReader  *geoip2.Reader
}

// NewMaxMindResolver opens the City database and, if asnDBPath is
// non-empty, the ASN database.
func NewMaxMindResolver(cityDBPath, asnDBPath string) (*MaxMindResolver, error) {
	cityReader, err := geoip2.Open(cityDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open city database: %w", err)
	}

	var asnReader *geoip2.Reader
	if asnDBPath != "" {
		asnReader, err = geoip2.Open(asnDBPath)
		if err != nil {
			cityReader.Close()
			return nil, fmt.Errorf("failed to open ASN database: %w", err)
		}
	}

	return &MaxMindResolver{cityReader: cityReader, asnReader: asnReader}, nil
}

// Close releases the open database readers
func (r *MaxMindResolver) Close() {
	if r.cityReader != nil {
		r.cityReader.Close()
	}
	if r.asnReader != nil {
		r.asnReader.Close()
	}
}

// Resolve looks up city, country, coordinates, and ASN for an address
func (r *MaxMindResolver) Resolve(_ context.Context, ipAddress string) (*Location, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip address: %s", ipAddress)
	}

	record, err := r.cityReader.City(ip)
	if err != nil {
		return nil, err
	}

	loc := &Location{
		IPAddress:   ipAddress,
		City:        record.City.Names["en"],
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
	}

	if r.asnReader != nil {
		asn, err := r.asnReader.ASN(ip)
		if err == nil {
			loc.ASNumber = "AS" + strconv.Itoa(int(asn.AutonomousSystemNumber))
			loc.Org = asn.AutonomousSystemOrganization
		}
	}

	return loc, nil
}
