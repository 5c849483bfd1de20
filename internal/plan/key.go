package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IdempotencyKey derives the stable chunk identity from job id, stage,
// chunk index, and the canonicalized input window. The same plan inputs
// always produce the same key, across retries and process restarts.
func IdempotencyKey(jobID, stage string, index int, canonicalWindow string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%s", jobID, stage, index, canonicalWindow))
	return hex.EncodeToString(sum[:])
}
