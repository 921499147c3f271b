package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const secretBytes = 16

// newSecret returns a hex-encoded secret with 16 bytes of entropy from
// the system CSPRNG. Used for both the per-instance admin secret and the
// per-tenant scoped secret; a fresh one is drawn for every call.
func newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// tenantUsername derives the restricted ACL username from the owner's
// account id.
func tenantUsername(ownerID string) string {
	id := ownerID
	if len(id) > 8 {
		id = id[:8]
	}
	return "user_" + id
}
