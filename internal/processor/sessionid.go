package processor

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// sessionIDPrefix mirrors the short human-facing flight identifier prefix
// used by the original implementation (SESSION_ID_PREFIX = "AETH").
const sessionIDPrefix = "AETH"

// newSessionID generates a short session id: a fixed prefix, the aircraft's
// registration (tail number), and a random uint16, matching the original's
// <prefix><random-uint16> format extended with the registration for a
// human-readable flight identifier.
func newSessionID(registration string) (string, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("processor: generate session id: %w", err)
	}
	return fmt.Sprintf("%s-%s-%d", sessionIDPrefix, registration, binary.BigEndian.Uint16(buf[:])), nil
}
