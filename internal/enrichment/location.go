package enrichment

import (
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Status tells how a Location was obtained
type Status string

const (
	StatusResolved    Status = "resolved"
	StatusUnknown     Status = "unknown"     // origin malformed or absent from the database
	StatusUnavailable Status = "unavailable" // no database loaded or the lookup failed
)

// UnknownName is used for any name the database could not provide
const UnknownName = "unknown"

// FallbackLocale is consulted when the preferred locale has no name
const FallbackLocale = "en"

// Location is the geographic origin attached to an enriched record
type Location struct {
	Status  Status `json:"status"`
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Known reports whether the location came from a successful database match
func (l Location) Known() bool {
	return l.Status == StatusResolved
}

func UnknownLocation() Location {
	return Location{Status: StatusUnknown, Country: UnknownName, Region: UnknownName, City: UnknownName}
}

func UnavailableLocation() Location {
	return Location{Status: StatusUnavailable, Country: UnknownName, Region: UnknownName, City: UnknownName}
}

// Place holds the localized names a database returned for one address.
// Found is false when the address is not covered by the database.
type Place struct {
	Found        bool
	CountryNames map[string]string
	RegionNames  map[string]string
	CityNames    map[string]string
}

// LocationDB is an open city-level location database
type LocationDB interface {
	Lookup(ip net.IP) (Place, error)
	Close() error
}

// Opener opens the database file at path. Opening doubles as integrity validation.
type Opener func(path string) (LocationDB, error)

type geoIPDB struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens a MaxMind database file
func OpenGeoIP(path string) (LocationDB, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &geoIPDB{reader: reader}, nil
}

func (g *geoIPDB) Lookup(ip net.IP) (Place, error) {
	record, err := g.reader.City(ip)
	if err != nil {
		return Place{}, err
	}

	// Unmatched addresses decode into a zero-valued record
	if record.City.GeoNameID == 0 && record.Country.GeoNameID == 0 && len(record.Subdivisions) == 0 {
		return Place{}, nil
	}

	place := Place{
		Found:        true,
		CountryNames: record.Country.Names,
		CityNames:    record.City.Names,
	}
	if len(record.Subdivisions) > 0 {
		place.RegionNames = record.Subdivisions[0].Names
	}
	return place, nil
}

func (g *geoIPDB) Close() error {
	return g.reader.Close()
}

// toLocation picks names in the preferred locale, then the fallback locale.
// A place without a subdivision uses its country as the region.
func toLocation(place Place, locale string) Location {
	if !place.Found {
		return UnknownLocation()
	}

	country := pickName(place.CountryNames, locale)
	region := pickName(place.RegionNames, locale)
	if region == UnknownName {
		region = country
	}

	return Location{
		Status:  StatusResolved,
		Country: country,
		Region:  region,
		City:    pickName(place.CityNames, locale),
	}
}

func pickName(names map[string]string, locale string) string {
	if name := strings.TrimSpace(names[locale]); name != "" {
		return name
	}
	if name := strings.TrimSpace(names[FallbackLocale]); name != "" {
		return name
	}
	return UnknownName
}

// parseOrigin accepts a bare address or host:port and rejects anything else
func parseOrigin(origin string) net.IP {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil
	}
	if ip := net.ParseIP(origin); ip != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(origin); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
