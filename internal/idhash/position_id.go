package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(token|entry_signature)
// A token may be traded many times; the entry signature separates the holdings.
func ComputePositionID(token, entrySignature string) string {
	data := fmt.Sprintf("%s|%s", token, entrySignature)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
