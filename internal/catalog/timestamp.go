package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for catalog "updated" values and PO-Revision-Date headers.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04-0700",
	"2006-01-02 15:04 -0700",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a catalog or PO timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// IsNewer reports whether remote is strictly later than local. Either value
// failing to parse counts as newer.
func IsNewer(remote, local string) bool {
	r, err := ParseTimestamp(remote)
	if err != nil {
		return true
	}
	l, err := ParseTimestamp(local)
	if err != nil {
		return true
	}
	return r.After(l)
}
