// Package codec maps attendance sessions to the JSON text embedded in QR codes and back.
//
// The wire format is a flat JSON object with courseId, courseCode, courseName, generatedAt and expiresAt,
// in that order, timestamps in RFC 3339 with the reference zone offset. When a signing secret is configured a
// trailing "sig" field carries an HMAC-SHA256 over the unsigned object; otherwise the output is exactly the
// five-field object.
package codec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/clock"
)

// MaxPayloadBytes bounds the raw text accepted by Decode. QR codes cannot carry more than a few KB.
const MaxPayloadBytes = 4096

const keyInfoPrefix = "cheqr-qr-payload:"

// wirePayload fixes the field order of the encoded JSON.
type wirePayload struct {
	CourseID    string `json:"courseId"`
	CourseCode  string `json:"courseCode"`
	CourseName  string `json:"courseName"`
	GeneratedAt string `json:"generatedAt"`
	ExpiresAt   string `json:"expiresAt"`
	Sig         string `json:"sig,omitempty"`
}

// Codec encodes and decodes QR payloads. The zero value is not usable; call New.
type Codec struct {
	loc    *time.Location
	secret []byte
}

// New returns a Codec that formats timestamps in loc (nil selects clock.ReferenceZone).
// A non-empty secret enables payload signatures.
func New(loc *time.Location, secret string) *Codec {
	if loc == nil {
		loc = clock.ReferenceZone
	}
	c := &Codec{loc: loc}
	if secret != "" {
		c.secret = []byte(secret)
	}
	return c
}

// Signing reports whether Encode signs payloads and Verify is meaningful.
func (c *Codec) Signing() bool {
	return len(c.secret) > 0
}

// Encode returns the QR text for the public fields of s. Deterministic for a given session.
func (c *Codec) Encode(s *domain.Session) (string, error) {
	if s == nil {
		return "", errors.New("codec: nil session")
	}
	return c.EncodePayload(domain.PayloadFor(s))
}

// EncodePayload returns the QR text for p, signing it when a secret is configured.
func (c *Codec) EncodePayload(p domain.Payload) (string, error) {
	w := c.toWire(p)
	if c.Signing() {
		sig, err := c.sign(w)
		if err != nil {
			return "", err
		}
		w.Sig = sig
	}
	b, err := marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses raw QR text. Every failure is a *domain.DecodeError; Decode never panics on hostile input.
// Timestamps are returned in the codec's zone regardless of the offset they were written with.
func (c *Codec) Decode(raw string) (*domain.Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &domain.DecodeError{Reason: "empty payload"}
	}
	if len(raw) > MaxPayloadBytes {
		return nil, &domain.DecodeError{Reason: "payload too large"}
	}
	var w wirePayload
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, &domain.DecodeError{Reason: "not a JSON object", Err: err}
	}
	required := []struct{ name, value string }{
		{"courseId", w.CourseID},
		{"courseCode", w.CourseCode},
		{"courseName", w.CourseName},
		{"generatedAt", w.GeneratedAt},
		{"expiresAt", w.ExpiresAt},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, &domain.DecodeError{Field: f.name, Reason: "missing"}
		}
	}
	generatedAt, err := time.Parse(time.RFC3339Nano, w.GeneratedAt)
	if err != nil {
		return nil, &domain.DecodeError{Field: "generatedAt", Reason: "not an ISO-8601 timestamp", Err: err}
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, w.ExpiresAt)
	if err != nil {
		return nil, &domain.DecodeError{Field: "expiresAt", Reason: "not an ISO-8601 timestamp", Err: err}
	}
	if !expiresAt.After(generatedAt) {
		return nil, &domain.DecodeError{Field: "expiresAt", Reason: "not after generatedAt"}
	}
	return &domain.Payload{
		CourseID:    w.CourseID,
		CourseCode:  w.CourseCode,
		CourseName:  w.CourseName,
		GeneratedAt: generatedAt.In(c.loc),
		ExpiresAt:   expiresAt.In(c.loc),
		Signature:   w.Sig,
	}, nil
}

// Verify reports whether p carries a valid signature for its fields. Always false when signing is disabled.
func (c *Codec) Verify(p *domain.Payload) bool {
	if !c.Signing() || p == nil || p.Signature == "" {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(p.Signature)
	if err != nil {
		return false
	}
	w := c.toWire(*p)
	mac, err := c.mac(w)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac)
}

func (c *Codec) toWire(p domain.Payload) wirePayload {
	return wirePayload{
		CourseID:    p.CourseID,
		CourseCode:  p.CourseCode,
		CourseName:  p.CourseName,
		GeneratedAt: p.GeneratedAt.In(c.loc).Format(time.RFC3339),
		ExpiresAt:   p.ExpiresAt.In(c.loc).Format(time.RFC3339),
	}
}

func (c *Codec) sign(w wirePayload) (string, error) {
	mac, err := c.mac(w)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(mac), nil
}

// mac computes the HMAC over the unsigned canonical encoding, keyed per course.
func (c *Codec) mac(w wirePayload) ([]byte, error) {
	w.Sig = ""
	msg, err := marshal(w)
	if err != nil {
		return nil, err
	}
	key, err := c.courseKey(w.CourseID)
	if err != nil {
		return nil, err
	}
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil), nil
}

func (c *Codec) courseKey(courseID string) ([]byte, error) {
	r := hkdf.New(sha256.New, c.secret, nil, []byte(keyInfoPrefix+courseID))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// marshal encodes without HTML escaping so course names with & or < stay readable in the QR text.
func marshal(w wirePayload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
