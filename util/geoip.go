package util

import (
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"
	cache "github.com/patrickmn/go-cache"
)

var (
	geoipDB        *geoip2.Reader
	geoipCache     *cache.Cache
	geoipCacheHits int64
	geoipCacheMiss int64
)

type ipLocation struct {
	City    string
	Country string
}

// InitGeoIP initializes the local GeoIP2 database reader and an in-memory
// cache. Provide the path to a GeoIP2/GeoLite2 .mmdb file via dbPath, or set
// GEOIP_DB_PATH. If no path is configured, initialization is a no-op and
// lookups return empty strings.
func InitGeoIP(dbPath string) error {
	if dbPath == "" {
		dbPath = os.Getenv("GEOIP_DB_PATH")
	}
	if dbPath == "" {
		return nil
	}

	r, err := geoip2.Open(dbPath)
	if err != nil {
		return err
	}
	geoipDB = r
	// Cache entries for 24h, purge every hour
	geoipCache = cache.New(24*time.Hour, 1*time.Hour)
	return nil
}

// CloseGeoIP closes the GeoIP DB if opened.
func CloseGeoIP() {
	if geoipDB != nil {
		_ = geoipDB.Close()
		geoipDB = nil
	}
}

// GetIPLocation resolves city and country for an IP using the local database,
// consulting the cache first. Returns empty strings when the database is not
// configured or the IP cannot be resolved.
func GetIPLocation(ip string) (string, string) {
	if geoipDB == nil || ip == "" {
		return "", ""
	}

	if geoipCache != nil {
		if v, ok := geoipCache.Get(ip); ok {
			atomic.AddInt64(&geoipCacheHits, 1)
			if loc, ok := v.(ipLocation); ok {
				return loc.City, loc.Country
			}
		}
	}
	atomic.AddInt64(&geoipCacheMiss, 1)

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ""
	}
	record, err := geoipDB.City(parsed)
	if err != nil {
		return "", ""
	}

	loc := ipLocation{
		City:    record.City.Names["en"],
		Country: record.Country.Names["en"],
	}
	if geoipCache != nil {
		geoipCache.Set(ip, loc, cache.DefaultExpiration)
	}
	return loc.City, loc.Country
}

// GeoIPCacheStats returns hit/miss counters for monitoring.
func GeoIPCacheStats() (hits, misses int64) {
	return atomic.LoadInt64(&geoipCacheHits), atomic.LoadInt64(&geoipCacheMiss)
}
