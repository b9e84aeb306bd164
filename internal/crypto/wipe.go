package crypto

import "securechat/internal/util/memzero"

// Wipe zeroes a secret buffer such as a decrypted password.
func Wipe(b []byte) { memzero.Zero(b) }
