package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainReport separates report digests from any other use of the hash.
// The version suffix allows the report layout to change.
const DomainReport = "meshcheck/report/v1"

// Digest hashes the canonical form of v with domain separation:
// SHA256(domain + 0x00 + canonical(v)), hex encoded.
func Digest(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
