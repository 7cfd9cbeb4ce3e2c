// Package system provides a real clock implementation.
package system

import (
	"fmt"
	"time"
)

// Clock implements monitor.Clock using time.Now in the plants' time zone.
type Clock struct {
	loc *time.Location
}

// New creates a Clock for the named IANA zone. An empty name uses the local zone.
func New(zone string) (*Clock, error) {
	if zone == "" {
		return &Clock{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time in the configured zone.
func (c Clock) Now() time.Time {
	if c.loc == nil {
		return time.Now()
	}
	return time.Now().In(c.loc)
}
