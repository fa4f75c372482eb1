// Package ticket produces and verifies the signed check-in payload
// attached to a confirmed reservation.  The payload is the portable,
// verifiable artifact: rendering it as a scannable image is a
// presentation concern layered on top and lives with the clients.
package ticket

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Tickets stay valid for this long past the event start so late
// arrivals can still be scanned in.
const ExpiryBuffer = 2 * time.Hour

// signatureHexLen truncates signatures to 16 hex characters.  The
// payload is also bound to a specific reservation row server-side, so
// the signature only needs to stop casual forgery, not survive offline
// brute force.
const signatureHexLen = 16

// ErrExpired is returned by Verify when the payload is past its expiry,
// regardless of whether the signature matches.
var ErrExpired = errors.New("ticket expired")

// ErrBadSignature is returned by Verify when the recomputed signature
// over the claimed fields does not match the one in the payload.
var ErrBadSignature = errors.New("ticket signature mismatch")

// ErrMalformed is returned by Decode when the raw content is not a
// structurally valid payload.
var ErrMalformed = errors.New("malformed ticket payload")

// Payload is the signed, time-bounded proof that a reservation is valid
// for check-in.  TableID is zero for aggregate pools.  ExpiresAt is a
// Unix timestamp so the signed byte string is stable across timezones.
type Payload struct {
	ReservationID uint64 `json:"reservation_id"`
	OwnerID       uint64 `json:"owner_id"`
	PoolID        uint64 `json:"pool_id"`
	TableID       uint64 `json:"table_id"`
	ExpiresAt     int64  `json:"expires_at"`
	Signature     string `json:"sig"`
}

// Signer signs and verifies ticket payloads with a server-held secret.
// The zero value is unusable; construct one with NewSigner.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner derives a fixed-size signing key from the configured secret
// and returns a ready Signer.
func NewSigner(secret string) *Signer {
	// blake2b keys are capped at 64 bytes; hashing the secret keeps any
	// configured length legal and normalizes weak short secrets.
	key := blake2b.Sum256([]byte(secret))
	return &Signer{key: key[:], now: time.Now}
}

// WithClock overrides the time source used by Verify.  Intended for
// tests; production code should rely on the default.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign builds the payload for a reservation.  The expiry is the event
// start plus the two-hour buffer.  tableID is zero when the pool is not
// table-scoped.
func (s *Signer) Sign(reservationID, ownerID, poolID, tableID uint64, eventStart time.Time) Payload {
	p := Payload{
		ReservationID: reservationID,
		OwnerID:       ownerID,
		PoolID:        poolID,
		TableID:       tableID,
		ExpiresAt:     eventStart.Add(ExpiryBuffer).UTC().Unix(),
	}
	p.Signature = s.signature(p)
	return p
}

// Verify checks a payload.  Expiry is checked before the signature: an
// expired-but-correctly-signed ticket is still invalid, and reporting
// expiry first gives operators the more useful error.
func (s *Signer) Verify(p Payload) error {
	if s.now().UTC().Unix() > p.ExpiresAt {
		return ErrExpired
	}
	if p.Signature != s.signature(p) {
		return ErrBadSignature
	}
	return nil
}

// Encode serializes a payload to the opaque string stored on the
// reservation row and embedded in the rendered ticket.
func Encode(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses raw scanned content back into a Payload.  Any structural
// problem is reported as ErrMalformed; signature and expiry are left to
// Verify.
func Decode(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, ErrMalformed
	}
	if p.ReservationID == 0 || p.OwnerID == 0 || p.PoolID == 0 {
		return Payload{}, ErrMalformed
	}
	return p, nil
}

// signature computes the keyed hash over every field except the
// signature itself.  The pipe-separated layout keeps field boundaries
// unambiguous so no two field combinations hash alike.
func (s *Signer) signature(p Payload) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// Only reachable with an invalid key length, which NewSigner
		// makes impossible.
		panic(err)
	}
	fmt.Fprintf(h, "%d|%d|%d|%d|%d", p.ReservationID, p.OwnerID, p.PoolID, p.TableID, p.ExpiresAt)
	return hex.EncodeToString(h.Sum(nil))[:signatureHexLen]
}
