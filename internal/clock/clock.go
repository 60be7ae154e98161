// Package clock supplies the current instant in the reference timezone used for all session expiry math.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// ReferenceOffset is the fixed offset of the reference timezone from UTC.
const ReferenceOffset = 8 * time.Hour

// ReferenceZoneName labels ReferenceZone and is the default REFERENCE_TIMEZONE value.
const ReferenceZoneName = "UTC+8"

// ReferenceZone is the fixed UTC+8 zone. Instants are converted into it exactly once, with In; no code path
// adds the offset arithmetically.
var ReferenceZone = time.FixedZone(ReferenceZoneName, int(ReferenceOffset/time.Second))

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

// System reads the wall clock and expresses it in loc.
type System struct {
	loc *time.Location
}

// NewSystem returns a Clock reporting time.Now in loc. A nil loc selects ReferenceZone.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = ReferenceZone
	}
	return &System{loc: loc}
}

// Now returns the current instant in the configured zone.
func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

// Location returns the zone Now reports in.
func (s *System) Location() *time.Location {
	return s.loc
}

// LoadZone resolves a REFERENCE_TIMEZONE value. Empty and "UTC+8" map to ReferenceZone; anything else must be
// an IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == ReferenceZoneName {
		return ReferenceZone, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("clock: load zone %q: %w", name, err)
	}
	return loc, nil
}
