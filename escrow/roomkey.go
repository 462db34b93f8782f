package escrow

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/crypto/blake256"
)

// roomKeyTag domain-separates room key derivation from any other hashing in
// the system.
const roomKeyTag = "critterclash/roomkey/v1"

// RoomKey derives the deterministic 32-byte on-chain room key from the
// human-shareable room code. Codes are case-insensitive.
func RoomKey(code string) [32]byte {
	h := blake256.New()
	h.Write([]byte(roomKeyTag))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(code))))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RoomKeyHex is the hex form used as the contract map key.
func RoomKeyHex(code string) string {
	k := RoomKey(code)
	return hex.EncodeToString(k[:])
}
