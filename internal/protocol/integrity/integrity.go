// Package integrity computes and checks the digests carried alongside chat
// messages. SHA-256 is authoritative; MD5 is a compatibility field that is
// checked when present.
package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"securechat/internal/domain"
)

// Digests are lowercase hex digests of a plaintext. Either may be empty.
type Digests struct {
	SHA256 string
	MD5    string
}

// Empty reports whether no digest was carried.
func (d Digests) Empty() bool { return d.SHA256 == "" && d.MD5 == "" }

// Compute digests plaintext.
func Compute(plaintext []byte) Digests {
	s := sha256.Sum256(plaintext)
	m := md5.Sum(plaintext)
	return Digests{
		SHA256: hex.EncodeToString(s[:]),
		MD5:    hex.EncodeToString(m[:]),
	}
}

// Verify checks every non-empty digest in carried against plaintext. Hex is
// compared case-insensitively in constant time.
func Verify(plaintext []byte, carried Digests) error {
	want := Compute(plaintext)
	if carried.SHA256 != "" && !equalHex(want.SHA256, carried.SHA256) {
		return fmt.Errorf("%w: sha256 mismatch", domain.ErrIntegrity)
	}
	if carried.MD5 != "" && !equalHex(want.MD5, carried.MD5) {
		return fmt.Errorf("%w: md5 mismatch", domain.ErrIntegrity)
	}
	return nil
}

func equalHex(computed, carried string) bool {
	carried = strings.ToLower(strings.TrimSpace(carried))
	return subtle.ConstantTimeCompare([]byte(computed), []byte(carried)) == 1
}
