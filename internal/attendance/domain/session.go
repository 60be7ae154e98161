package domain

import "time"

// Session is a time-boxed window during which scans for one course are accepted.
// Sessions are never updated after creation except by appending scans; once ExpiresAt passes they are inert.
type Session struct {
	ID         string
	CourseID   string
	CourseCode string // snapshot at generation time
	CourseName string // snapshot at generation time
	LecturerID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Scans      []ScanRecord // arrival order
}

// ScanRecord is one accepted attendance mark. Owned by its session.
type ScanRecord struct {
	SessionID string
	StudentID string
	ScannedAt time.Time
}

// IsLive reports whether the session still accepts scans at now (now <= ExpiresAt).
func (s *Session) IsLive(now time.Time) bool {
	return s != nil && !now.After(s.ExpiresAt)
}

// Remaining returns the time left until expiry, or zero once expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Payload is the decoded content of a QR code: course identity plus the issuance window.
// It has no identity beyond structural equality.
type Payload struct {
	CourseID    string
	CourseCode  string
	CourseName  string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	// Signature is the base64url HMAC carried by signed payloads; empty when unsigned.
	Signature string
}

// PayloadFor returns the public fields of s as a Payload.
func PayloadFor(s *Session) Payload {
	return Payload{
		CourseID:    s.CourseID,
		CourseCode:  s.CourseCode,
		CourseName:  s.CourseName,
		GeneratedAt: s.IssuedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}

// Equal compares payloads field by field, treating timestamps as instants.
func (p Payload) Equal(o Payload) bool {
	return p.CourseID == o.CourseID &&
		p.CourseCode == o.CourseCode &&
		p.CourseName == o.CourseName &&
		p.GeneratedAt.Equal(o.GeneratedAt) &&
		p.ExpiresAt.Equal(o.ExpiresAt)
}
