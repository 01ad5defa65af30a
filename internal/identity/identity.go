// Package identity derives the rendezvous identifiers peers use to find each
// other: a short shareable room code for the host, and a collision-resistant
// id per guest.
package identity

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDPrefix namespaces every id this application registers with the transport.
const IDPrefix = "racetype-"

const CodeLength = 4

// codeAlphabet drops 0, 1, I and O to keep codes unambiguous when read aloud.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewRoomCode samples a fresh 4-character room code. Collisions between two
// concurrent hosts are possible and handled by regenerating on an
// unavailable-id error.
func NewRoomCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// HostID maps a room code to the rendezvous id the host listens on.
func HostID(code string) string {
	return IDPrefix + code
}

// NewGuestID builds an id that is unique with overwhelming probability across
// concurrent joiners: wall-clock millis plus a random component, so guests
// racing to join the same room never collide with each other.
func NewGuestID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	r := uuid.NewString()[:8]
	return IDPrefix + ts + "-" + r + "-g"
}

// NormalizeCode uppercases user input and strips anything outside A-Z0-9.
func NormalizeCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
