package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables understood by ApplyEnv.
const (
	EnvHost           = "CHAT_HOST"
	EnvPort           = "CHAT_PORT"
	EnvPassword       = "CHAT_SERVER_PASSWORD"
	EnvMaxClients     = "CHAT_MAX_CLIENTS"
	EnvKeySize        = "CHAT_RSA_KEY_SIZE"
	EnvPrivateKeyFile = "CHAT_SERVER_PRIVATE_KEY"
	EnvPublicKeyFile  = "CHAT_SERVER_PUBLIC_KEY"
	EnvLogLevel       = "CHAT_LOG_LEVEL"
	EnvEnableTLS      = "CHAT_ENABLE_SSL"
	EnvTLSCert        = "CHAT_SSL_CERT"
	EnvTLSKey         = "CHAT_SSL_KEY"
)

// ApplyEnv overrides cfg with any CHAT_* variables that are set, then
// re-validates. Values that fail to parse are an error, not ignored.
func (cfg *Config) ApplyEnv() error {
	return cfg.applyEnv(os.LookupEnv)
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str(EnvHost, &cfg.Server.Host)
	if err := num(EnvPort, &cfg.Server.Port); err != nil {
		return err
	}
	str(EnvPassword, &cfg.Server.Password)
	maxClients := cfg.Server.MaxClients
	if err := num(EnvMaxClients, &maxClients); err != nil {
		return err
	}
	cfg.SetMaxClients(maxClients)
	if err := num(EnvKeySize, &cfg.Keys.Bits); err != nil {
		return err
	}
	str(EnvPrivateKeyFile, &cfg.Keys.PrivateKeyFile)
	str(EnvPublicKeyFile, &cfg.Keys.PublicKeyFile)
	str(EnvLogLevel, &cfg.Logging.Level)
	if v, ok := lookup(EnvEnableTLS); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvEnableTLS, err)
		}
		cfg.TLS.Enable = b
	}
	str(EnvTLSCert, &cfg.TLS.CertFile)
	str(EnvTLSKey, &cfg.TLS.KeyFile)

	return cfg.FixupAndValidate()
}

// SetMaxClients changes the client cap and keeps a derived MaxWorkers in
// step with it.
func (cfg *Config) SetMaxClients(n int) {
	if cfg.Server.MaxWorkers == cfg.Server.MaxClients+handshakeHeadroom {
		cfg.Server.MaxWorkers = n + handshakeHeadroom
	}
	cfg.Server.MaxClients = n
}
