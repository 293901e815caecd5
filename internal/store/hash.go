package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// DomainScenario prefixes scenario keys. The version suffix allows the key
// derivation to change without colliding with stored keys.
const DomainScenario = "cuke/scenario/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ScenarioKey identifies a scenario across runs by its URI and line.
func ScenarioKey(uri string, line int) string {
	data := make([]byte, 0, len(uri)+12)
	data = append(data, uri...)
	data = append(data, 0x00)
	data = strconv.AppendInt(data, int64(line), 10)
	return hashWithDomain(DomainScenario, data)
}
