package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ComputeClusterID computes a deterministic cluster_id using SHA256.
// Formula: SHA256(token|window_start_ms|sorted_members joined by ",")
// Member order does not affect the result. Returns 64 hex characters.
func ComputeClusterID(token string, windowStartMs int64, members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	data := fmt.Sprintf("%s|%d|%s",
		token,
		windowStartMs,
		strings.Join(sorted, ","),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
