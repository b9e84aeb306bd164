// Package config provides the chat server configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"securechat/internal/crypto"
	"securechat/internal/log"
)

const (
	defaultHost            = "localhost"
	defaultPort            = 5555
	defaultPassword        = "secreto"
	defaultMaxClients      = 500
	defaultShutdownTimeout = 5 * 1000 // 5 sec.
	defaultPrivateKeyFile  = "server_private_key.pem"
	defaultPublicKeyFile   = "server_public_key.pem"
	defaultCertFile        = "server_cert.pem"
	defaultTLSKeyFile      = "server_key.pem"
	defaultLogLevel        = "NOTICE"
	handshakeHeadroom      = 16
	maxMaxWorkers          = 1 << 16
)

// DefaultPassword is the password used when none is configured.
const DefaultPassword = defaultPassword

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the listener and session configuration.
type Server struct {
	// Host is the address to bind, "0.0.0.0" for every interface.
	Host string

	// Port is the TCP port.
	Port int

	// Password is the shared secret every client must present.
	Password string

	// MaxClients caps the number of authenticated clients.
	MaxClients int

	// MaxWorkers caps concurrent session workers. It defaults to MaxClients
	// plus a headroom so a full server can still answer SERVIDOR_LLENO.
	MaxWorkers int

	// HandshakeTimeout bounds the TLS and login exchange in milliseconds.
	// Zero disables it.
	HandshakeTimeout int

	// IdleTimeout bounds the wait for each chat message in milliseconds.
	// Zero disables it.
	IdleTimeout int

	// ShutdownTimeout bounds the graceful drain in milliseconds.
	ShutdownTimeout int
}

// Address returns Host:Port.
func (sCfg *Server) Address() string {
	return net.JoinHostPort(sCfg.Host, strconv.Itoa(sCfg.Port))
}

func (sCfg *Server) applyDefaults() {
	if sCfg.Host == "" {
		sCfg.Host = defaultHost
	}
	if sCfg.Port == 0 {
		sCfg.Port = defaultPort
	}
	if sCfg.Password == "" {
		sCfg.Password = defaultPassword
	}
	if sCfg.MaxClients == 0 {
		sCfg.MaxClients = defaultMaxClients
	}
	if sCfg.MaxWorkers == 0 {
		sCfg.MaxWorkers = sCfg.MaxClients + handshakeHeadroom
	}
	if sCfg.ShutdownTimeout == 0 {
		sCfg.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (sCfg *Server) validate() error {
	if sCfg.Port < 0 || sCfg.Port > 65535 {
		return fmt.Errorf("config: Server: Port %d is out of range", sCfg.Port)
	}
	if sCfg.MaxClients < 1 {
		return fmt.Errorf("config: Server: MaxClients %d must be positive", sCfg.MaxClients)
	}
	if sCfg.MaxWorkers < sCfg.MaxClients || sCfg.MaxWorkers > maxMaxWorkers {
		return fmt.Errorf("config: Server: MaxWorkers %d must be in [MaxClients, %d]", sCfg.MaxWorkers, maxMaxWorkers)
	}
	if sCfg.HandshakeTimeout < 0 || sCfg.IdleTimeout < 0 || sCfg.ShutdownTimeout < 0 {
		return errors.New("config: Server: timeouts must not be negative")
	}
	return nil
}

// Keys locates the server's RSA key pair.
type Keys struct {
	// PrivateKeyFile is the PKCS#8 PEM private key path.
	PrivateKeyFile string

	// PublicKeyFile is the PKIX PEM public key path handed to clients.
	PublicKeyFile string

	// Bits is the modulus size used when generating a new pair.
	Bits int

	// Passphrase, if set, seals the private key file.
	Passphrase string
}

func (kCfg *Keys) applyDefaults() {
	if kCfg.PrivateKeyFile == "" {
		kCfg.PrivateKeyFile = defaultPrivateKeyFile
	}
	if kCfg.PublicKeyFile == "" {
		kCfg.PublicKeyFile = defaultPublicKeyFile
	}
	if kCfg.Bits == 0 {
		kCfg.Bits = crypto.DefaultKeyBits
	}
}

func (kCfg *Keys) validate() error {
	if !crypto.SupportedKeySize(kCfg.Bits) {
		return fmt.Errorf("config: Keys: Bits %d is unsupported", kCfg.Bits)
	}
	if kCfg.PrivateKeyFile == kCfg.PublicKeyFile {
		return errors.New("config: Keys: PrivateKeyFile and PublicKeyFile must differ")
	}
	return nil
}

// TLS wraps the listener in TLS.
type TLS struct {
	Enable   bool
	CertFile string
	KeyFile  string
}

func (tCfg *TLS) applyDefaults() {
	if tCfg.CertFile == "" {
		tCfg.CertFile = defaultCertFile
	}
	if tCfg.KeyFile == "" {
		tCfg.KeyFile = defaultTLSKeyFile
	}
}

// Logging is the chat server logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch {
	case lvl == "":
		lvl = defaultLogLevel
	case !log.ValidLevel(lvl):
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Metrics configures the optional prometheus listener.
type Metrics struct {
	// Address is where /metrics is served; empty disables it.
	Address string
}

// Config is the top level chat server configuration.
type Config struct {
	Server  *Server
	Keys    *Keys
	TLS     *TLS
	Logging *Logging
	Metrics *Metrics
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic("config: defaults do not validate: " + err.Error())
	}
	return cfg
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Keys == nil {
		cfg.Keys = &Keys{}
	}
	if cfg.TLS == nil {
		cfg.TLS = &TLS{}
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}

	cfg.Server.applyDefaults()
	cfg.Keys.applyDefaults()
	cfg.TLS.applyDefaults()

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Keys.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// HandshakeTimeout returns Server.HandshakeTimeout as a duration.
func (cfg *Config) HandshakeTimeout() time.Duration {
	return time.Duration(cfg.Server.HandshakeTimeout) * time.Millisecond
}

// IdleTimeout returns Server.IdleTimeout as a duration.
func (cfg *Config) IdleTimeout() time.Duration {
	return time.Duration(cfg.Server.IdleTimeout) * time.Millisecond
}

// ShutdownTimeout returns Server.ShutdownTimeout as a duration.
func (cfg *Config) ShutdownTimeout() time.Duration {
	return time.Duration(cfg.Server.ShutdownTimeout) * time.Millisecond
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: no nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// Display writes the effective configuration with the password masked.
func (cfg *Config) Display(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "    CHAT SERVER CONFIGURATION")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Listen address:      %s\n", cfg.Server.Address())
	fmt.Fprintf(w, "Max clients:         %d\n", cfg.Server.MaxClients)
	fmt.Fprintf(w, "Max workers:         %d\n", cfg.Server.MaxWorkers)
	fmt.Fprintf(w, "Handshake timeout:   %s\n", durationOrOff(cfg.HandshakeTimeout()))
	fmt.Fprintf(w, "Idle timeout:        %s\n", durationOrOff(cfg.IdleTimeout()))
	fmt.Fprintf(w, "Shutdown timeout:    %s\n", cfg.ShutdownTimeout())
	fmt.Fprintf(w, "RSA key size:        %d bits\n", cfg.Keys.Bits)
	fmt.Fprintf(w, "Server private key:  %s\n", cfg.Keys.PrivateKeyFile)
	fmt.Fprintf(w, "Server public key:   %s\n", cfg.Keys.PublicKeyFile)
	fmt.Fprintf(w, "Key passphrase:      %s\n", setOrUnset(cfg.Keys.Passphrase))
	fmt.Fprintf(w, "TLS:                 %t\n", cfg.TLS.Enable)
	if cfg.TLS.Enable {
		fmt.Fprintf(w, "TLS certificate:     %s\n", cfg.TLS.CertFile)
		fmt.Fprintf(w, "TLS key:             %s\n", cfg.TLS.KeyFile)
	}
	fmt.Fprintf(w, "Log level:           %s\n", cfg.Logging.Level)
	if cfg.Metrics.Address != "" {
		fmt.Fprintf(w, "Metrics address:     %s\n", cfg.Metrics.Address)
	}
	fmt.Fprintf(w, "Server password:     %s\n", strings.Repeat("*", len(cfg.Server.Password)))
	fmt.Fprintln(w, rule)
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}

func setOrUnset(s string) string {
	if s == "" {
		return "(none)"
	}
	return "(set)"
}
