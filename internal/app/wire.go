package app

import (
	"crypto/tls"
	"fmt"

	"securechat/internal/certs"
	"securechat/internal/config"
	"securechat/internal/crypto"
	"securechat/internal/instrument"
	"securechat/internal/log"
	"securechat/internal/protocol/handshake"
	"securechat/internal/server"
	"securechat/internal/store"
)

// Wire bundles everything built from a Config.
type Wire struct {
	Log     *log.Backend
	Keys    *crypto.KeyPair
	TLS     *tls.Config
	Server  *server.Server
	Metrics *instrument.Listener

	// KeysGenerated is set when the key pair was created on this run.
	KeysGenerated bool
}

// KeyFiles maps the Keys section onto the key store.
func KeyFiles(cfg *config.Config) store.KeyFiles {
	return store.KeyFiles{
		PrivatePath: cfg.Keys.PrivateKeyFile,
		PublicPath:  cfg.Keys.PublicKeyFile,
		Bits:        cfg.Keys.Bits,
		Passphrase:  cfg.Keys.Passphrase,
	}
}

// NewWire constructs the dependency graph from cfg. Every failure here is
// fatal to startup.
func NewWire(cfg *config.Config) (*Wire, error) {
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	w := &Wire{Log: backend}

	// Key material
	w.Keys, w.KeysGenerated, err = KeyFiles(cfg).LoadOrGenerate()
	if err != nil {
		return nil, fmt.Errorf("app: server key pair: %w", err)
	}

	// Optional TLS
	if cfg.TLS.Enable {
		w.TLS, err = certs.ServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("app: %w (run `chatserver gencert` to create a development pair)", err)
		}
	}

	w.Server, err = server.New(server.Config{
		Address:          cfg.Server.Address(),
		KeyPair:          w.Keys,
		Password:         handshake.NewPassword([]byte(cfg.Server.Password)),
		MaxClients:       cfg.Server.MaxClients,
		MaxWorkers:       cfg.Server.MaxWorkers,
		TLS:              w.TLS,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		IdleTimeout:      cfg.IdleTimeout(),
		ShutdownTimeout:  cfg.ShutdownTimeout(),
		LogBackend:       backend,
	})
	if err != nil {
		return nil, err
	}

	// Metrics last, so a bind failure above leaves nothing listening.
	if cfg.Metrics.Address != "" {
		w.Metrics, err = instrument.StartListener(cfg.Metrics.Address, backend.GetGoLogger("metrics", "WARNING"))
		if err != nil {
			w.Server.Shutdown()
			return nil, fmt.Errorf("app: metrics listener: %w", err)
		}
	}
	return w, nil
}
