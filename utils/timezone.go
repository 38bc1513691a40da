package utils

import (
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is the fallback bucket when a contact's location is absent
// or unmapped. Overridable through config.
var DefaultTimezone = "America/New_York"

// Contact locations are free text, so resolution is a coarse lookup against a
// small set of reference zones rather than full IANA resolution. The buckets
// below cover the offsets the product actually sees.
var locationTimezones = map[string]string{
	// North America
	"new york":      "America/New_York",
	"nyc":           "America/New_York",
	"boston":        "America/New_York",
	"toronto":       "America/New_York",
	"montreal":      "America/New_York",
	"florida":       "America/New_York",
	"georgia":       "America/New_York",
	"virginia":      "America/New_York",
	"michigan":      "America/New_York",
	"ohio":          "America/New_York",
	"pennsylvania":  "America/New_York",
	"massachusetts": "America/New_York",
	"usa":           "America/New_York",
	"united states": "America/New_York",
	"canada":        "America/New_York",
	"chicago":       "America/Chicago",
	"houston":       "America/Chicago",
	"dallas":        "America/Chicago",
	"texas":         "America/Chicago",
	"illinois":      "America/Chicago",
	"minnesota":     "America/Chicago",
	"missouri":      "America/Chicago",
	"tennessee":     "America/Chicago",
	"denver":        "America/Denver",
	"colorado":      "America/Denver",
	"utah":          "America/Denver",
	"phoenix":       "America/Phoenix",
	"arizona":       "America/Phoenix",
	"los angeles":   "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"california":    "America/Los_Angeles",
	"washington":    "America/Los_Angeles",
	"oregon":        "America/Los_Angeles",
	"vancouver":     "America/Los_Angeles",

	// Europe
	"london":         "Europe/London",
	"uk":             "Europe/London",
	"united kingdom": "Europe/London",
	"england":        "Europe/London",
	"dublin":         "Europe/London",
	"ireland":        "Europe/London",
	"paris":          "Europe/Paris",
	"france":         "Europe/Paris",
	"berlin":         "Europe/Paris",
	"germany":        "Europe/Paris",
	"madrid":         "Europe/Paris",
	"spain":          "Europe/Paris",
	"amsterdam":      "Europe/Paris",
	"netherlands":    "Europe/Paris",
	"rome":           "Europe/Paris",
	"italy":          "Europe/Paris",
	"stockholm":      "Europe/Paris",
	"sweden":         "Europe/Paris",
	"zurich":         "Europe/Paris",
	"switzerland":    "Europe/Paris",

	// Asia Pacific
	"mumbai":      "Asia/Kolkata",
	"delhi":       "Asia/Kolkata",
	"bangalore":   "Asia/Kolkata",
	"india":       "Asia/Kolkata",
	"singapore":   "Asia/Singapore",
	"hong kong":   "Asia/Singapore",
	"shanghai":    "Asia/Singapore",
	"beijing":     "Asia/Singapore",
	"china":       "Asia/Singapore",
	"tokyo":       "Asia/Tokyo",
	"japan":       "Asia/Tokyo",
	"seoul":       "Asia/Tokyo",
	"south korea": "Asia/Tokyo",
	"sydney":      "Australia/Sydney",
	"melbourne":   "Australia/Sydney",
	"brisbane":    "Australia/Sydney",
	"australia":   "Australia/Sydney",
}

var (
	locationCache   sync.Map // zone name -> *time.Location
	locationCacheMu sync.Mutex
)

// ResolveTimezone maps a free-text contact location to a timezone bucket
// name. Returns the default zone when the location is empty or unmapped.
func ResolveTimezone(location string) string {
	normalized := strings.ToLower(strings.TrimSpace(location))
	if normalized == "" {
		return DefaultTimezone
	}

	if tz, ok := locationTimezones[normalized]; ok {
		return tz
	}

	// Compound locations like "Sydney, Australia" match on either side
	for key, tz := range locationTimezones {
		if strings.Contains(normalized, key) {
			return tz
		}
	}
	for key, tz := range locationTimezones {
		if strings.Contains(key, normalized) {
			return tz
		}
	}

	return DefaultTimezone
}

// LoadZone loads (and caches) the *time.Location for a bucket name, falling
// back to UTC when the tzdata lookup fails.
func LoadZone(name string) *time.Location {
	if loc, ok := locationCache.Load(name); ok {
		return loc.(*time.Location)
	}

	locationCacheMu.Lock()
	defer locationCacheMu.Unlock()
	if loc, ok := locationCache.Load(name); ok {
		return loc.(*time.Location)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locationCache.Store(name, loc)
	return loc
}

// IsBusinessHours reports whether now falls on a weekday within
// [startHour, endHour) in the given zone.
func IsBusinessHours(now time.Time, zone string, startHour, endHour int) bool {
	local := now.In(LoadZone(zone))

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	h := local.Hour()
	return h >= startHour && h < endHour
}

// IsActiveDay reports whether now (in zone) falls on one of the campaign's
// active weekdays, given as short names ("Mon".."Sun").
func IsActiveDay(now time.Time, zone string, activeDays []string) bool {
	day := now.In(LoadZone(zone)).Weekday().String()[:3]
	for _, d := range activeDays {
		if d == day {
			return true
		}
	}
	return false
}

// NextBusinessDay advances t day by day until it lands on a weekday.
func NextBusinessDay(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
