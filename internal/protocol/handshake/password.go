package handshake

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// Password is the shared server password sealed in an encrypted enclave.
type Password struct {
	enclave *memguard.Enclave
}

// NewPassword seals pw. The caller's buffer is wiped.
func NewPassword(pw []byte) *Password {
	// NewEnclave returns nil for an empty buffer; Equal then never matches.
	return &Password{enclave: memguard.NewEnclave(pw)}
}

// Equal compares candidate with the sealed password in constant time.
func (p *Password) Equal(candidate []byte) bool {
	if p == nil || p.enclave == nil {
		return false
	}
	lb, err := p.enclave.Open()
	if err != nil {
		return false
	}
	defer lb.Destroy()
	return subtle.ConstantTimeCompare(lb.Bytes(), candidate) == 1
}
