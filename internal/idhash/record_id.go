package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/domain"
)

// RecordID computes a deterministic record id using SHA256.
// Formula: SHA256(category|naturalKey)
// Returns hex-encoded hash (64 characters).
//
// The id is a pure function of the dedup key, so concurrent adapters
// racing on the same event always produce the same id.
func RecordID(category domain.Category, naturalKey string) string {
	data := fmt.Sprintf("%s|%s", string(category), naturalKey)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
