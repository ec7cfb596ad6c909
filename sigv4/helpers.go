package sigv4

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hexHMAC(key []byte, data string) string {
	return hex.EncodeToString(hmacSHA256(key, data))
}

func joinLines(parts ...string) string {
	return strings.Join(parts, "\n")
}
