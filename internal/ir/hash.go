package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// changing the encoded structure without colliding with old fingerprints.
const (
	DomainSchedule = "sequencer/schedule/v1"
	DomainTrace    = "sequencer/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical encoding of v under domain.
func Fingerprint(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}
