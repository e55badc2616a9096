package monitor

import (
	"crypto/sha256"
	"encoding/hex"
)

// CaptureDigest returns the hex SHA-256 of a capture.
func CaptureDigest(capture string) string {
	sum := sha256.Sum256([]byte(capture))
	return hex.EncodeToString(sum[:])
}
