package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheDirectives is the subset of HTTP caching headers the tile cache
// honors.
type CacheDirectives struct {
	MaxAge    time.Duration
	HasMaxAge bool
	Expires   time.Time
	NoStore   bool
	NoCache   bool
}

// ParseCacheDirectives reads Cache-Control, Age and Expires. s-maxage wins
// over max-age; an Age header shortens the remaining lifetime.
func ParseCacheDirectives(h http.Header) CacheDirectives {
	var d CacheDirectives

	var sMaxAge time.Duration
	var hasSMaxAge bool
	for _, line := range h.Values("Cache-Control") {
		for _, part := range strings.Split(line, ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
			switch strings.ToLower(name) {
			case "no-store":
				d.NoStore = true
			case "no-cache":
				d.NoCache = true
			case "max-age":
				if secs, ok := parseSeconds(value); ok {
					d.MaxAge, d.HasMaxAge = secs, true
				}
			case "s-maxage":
				if secs, ok := parseSeconds(value); ok {
					sMaxAge, hasSMaxAge = secs, true
				}
			}
		}
	}
	if hasSMaxAge {
		d.MaxAge, d.HasMaxAge = sMaxAge, true
	}

	if d.HasMaxAge {
		if age, ok := parseSeconds(h.Get("Age")); ok {
			d.MaxAge = max(0, d.MaxAge-age)
		}
	}

	if v := h.Get("Expires"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			d.Expires = t
		}
	}

	return d
}

// ExpiresAt derives the expiry of a payload fetched at fetchedAt. ok is
// false when the directives say nothing and a default TTL should apply.
func (d CacheDirectives) ExpiresAt(fetchedAt time.Time) (time.Time, bool) {
	switch {
	case d.NoCache:
		return fetchedAt, true
	case d.HasMaxAge:
		return fetchedAt.Add(d.MaxAge), true
	case !d.Expires.IsZero():
		return d.Expires, true
	default:
		return time.Time{}, false
	}
}

func parseSeconds(s string) (time.Duration, bool) {
	n, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(s), `"`), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
