package wire

// Control tokens. Each travels alone on its own line.
const (
	TokenPublicKeyReady  = "PUBLIC_KEY_READY"
	TokenClientPublicKey = "CLIENT_PUBLIC_KEY"
	TokenNick            = "NICK"
	TokenPassword        = "PASSWORD"
	TokenAuthSuccess     = "AUTH_SUCCESS"
	TokenAuthFailed      = "AUTH_FAILED"
	TokenServerFull      = "SERVIDOR_LLENO"
)

// IsToken reports whether line is one of the control tokens.
func IsToken(line string) bool {
	switch line {
	case TokenPublicKeyReady, TokenClientPublicKey, TokenNick, TokenPassword,
		TokenAuthSuccess, TokenAuthFailed, TokenServerFull:
		return true
	}
	return false
}
