package app

import (
	"sync"

	"gopkg.in/op/go-logging.v1"

	"securechat/internal/config"
	"securechat/internal/crypto"
)

// App is a configured chat server process.
type App struct {
	*Wire

	cfg *config.Config
	log *logging.Logger

	haltOnce sync.Once
}

// New builds an App from cfg without starting it.
func New(cfg *config.Config) (*App, error) {
	w, err := NewWire(cfg)
	if err != nil {
		return nil, err
	}
	return &App{
		Wire: w,
		cfg:  cfg,
		log:  w.Log.GetLogger("app"),
	}, nil
}

// Start begins accepting clients.
func (a *App) Start() {
	if a.KeysGenerated {
		a.log.Noticef("Generated a new %d-bit server key pair: %s", a.cfg.Keys.Bits, a.cfg.Keys.PublicKeyFile)
	}
	a.log.Noticef("Server key fingerprint: %s", crypto.Fingerprint(a.Keys.Public))
	if a.cfg.Server.Password == config.DefaultPassword {
		a.log.Warning("Using the default server password; set Server.Password or CHAT_SERVER_PASSWORD")
	}
	if a.Metrics != nil {
		a.log.Noticef("Metrics available at http://%v/metrics", a.Metrics.Addr())
	}
	a.Server.Start()
}

// Shutdown stops the server and the metrics listener.
func (a *App) Shutdown() {
	a.haltOnce.Do(func() {
		a.Server.Shutdown()
		if a.Metrics != nil {
			_ = a.Metrics.Close()
		}
	})
}

// Wait blocks until Shutdown has completed.
func (a *App) Wait() { a.Server.Wait() }

// RotateLog reopens the log file.
func (a *App) RotateLog() {
	if err := a.Log.Rotate(); err != nil {
		a.log.Errorf("Failed to rotate log: %v", err)
		return
	}
	a.log.Notice("Log rotated")
}
