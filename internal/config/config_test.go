package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	require := require.New(t)

	_, err := Load(nil)
	require.Error(err, "no Load() with nil config")

	cfg, err := Load([]byte(""))
	require.NoError(err)
	require.Equal("localhost", cfg.Server.Host)
	require.Equal(5555, cfg.Server.Port)
	require.Equal(DefaultPassword, cfg.Server.Password)
	require.Equal(500, cfg.Server.MaxClients)
	require.Equal(516, cfg.Server.MaxWorkers)
	require.Zero(cfg.HandshakeTimeout())
	require.Zero(cfg.IdleTimeout())
	require.Equal(2048, cfg.Keys.Bits)
	require.Equal("NOTICE", cfg.Logging.Level)
	require.False(cfg.TLS.Enable)
	require.Equal("server_cert.pem", cfg.TLS.CertFile)
}

func TestConfig_File(t *testing.T) {
	require := require.New(t)

	body := `# A basic configuration example.
[Server]
Host = "0.0.0.0"
Port = 6000
Password = "hunter2"
MaxClients = 3
IdleTimeout = 30000

[Keys]
PrivateKeyFile = "priv.pem"
PublicKeyFile = "pub.pem"
Bits = 3072

[TLS]
Enable = true

[Logging]
Level = "debug"

[Metrics]
Address = "127.0.0.1:9100"
`
	path := filepath.Join(t.TempDir(), "chat.toml")
	require.NoError(os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(err)
	require.Equal("0.0.0.0:6000", cfg.Server.Address())
	require.Equal(19, cfg.Server.MaxWorkers)
	require.Equal("30s", cfg.IdleTimeout().String())
	require.Equal(3072, cfg.Keys.Bits)
	require.True(cfg.TLS.Enable)
	require.Equal("DEBUG", cfg.Logging.Level, "level is upper-cased")
	require.Equal("127.0.0.1:9100", cfg.Metrics.Address)
}

func TestConfig_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key": "[Server]\nNope = 1\n",
		"bad level":   "[Logging]\nLevel = \"LOUD\"\n",
		"bad bits":    "[Keys]\nBits = 1024\n",
		"bad port":    "[Server]\nPort = 70000\n",
		"few workers": "[Server]\nMaxClients = 10\nMaxWorkers = 5\n",
		"same files":  "[Keys]\nPrivateKeyFile = \"k.pem\"\nPublicKeyFile = \"k.pem\"\n",
		"neg timeout": "[Server]\nIdleTimeout = -1\n",
		"broken toml": "[Server\n",
	} {
		_, err := Load([]byte(body))
		require.Error(t, err, name)
	}
}

func TestConfig_Env(t *testing.T) {
	require := require.New(t)
	cfg := Default()

	env := map[string]string{
		EnvHost:       "0.0.0.0",
		EnvPort:       "7000",
		EnvPassword:   "desde-env",
		EnvMaxClients: "10",
		EnvLogLevel:   "warning",
		EnvEnableTLS:  "true",
		EnvTLSCert:    "c.pem",
		EnvKeySize:    "4096",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(cfg.applyEnv(lookup))
	require.Equal("0.0.0.0:7000", cfg.Server.Address())
	require.Equal("desde-env", cfg.Server.Password)
	require.Equal(10, cfg.Server.MaxClients)
	require.Equal(26, cfg.Server.MaxWorkers)
	require.Equal("WARNING", cfg.Logging.Level)
	require.True(cfg.TLS.Enable)
	require.Equal("c.pem", cfg.TLS.CertFile)
	require.Equal(4096, cfg.Keys.Bits)

	env = map[string]string{EnvPort: "abc"}
	require.Error(cfg.applyEnv(lookup))
}

func TestConfig_SetMaxClientsKeepsExplicitWorkers(t *testing.T) {
	cfg, err := Load([]byte("[Server]\nMaxClients = 4\nMaxWorkers = 100\n"))
	require.NoError(t, err)
	cfg.SetMaxClients(8)
	require.Equal(t, 100, cfg.Server.MaxWorkers)
}

func TestConfig_DisplayMasksPassword(t *testing.T) {
	cfg := Default()
	cfg.Server.Password = "supersecreto"
	cfg.Keys.Passphrase = "frase"

	var buf bytes.Buffer
	cfg.Display(&buf)
	out := buf.String()
	require.NotContains(t, out, "supersecreto")
	require.NotContains(t, out, "frase")
	require.Contains(t, out, "************")
	require.Contains(t, out, "localhost:5555")
}
