// Package certs generates self-signed TLS material for development and
// builds the server and client TLS configurations.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"securechat/internal/store"
)

const (
	certKeyBits = 2048
	certMode    = 0o644
	keyMode     = 0o600

	// DefaultValidityDays matches the generator's --days default.
	DefaultValidityDays = 365
)

// DefaultHosts are always placed in the certificate's SANs.
var DefaultHosts = []string{"localhost", "*.localhost", "127.0.0.1", "0.0.0.0"}

// Options controls GenerateSelfSigned.
type Options struct {
	// Hosts are extra DNS names or IP addresses to include.
	Hosts []string

	// Days is the validity period; zero uses DefaultValidityDays.
	Days int

	// Now overrides the issue time.
	Now func() time.Time
}

// GenerateSelfSigned returns a PEM certificate and PKCS#8 PEM key.
func GenerateSelfSigned(opts Options) (certPEM, keyPEM []byte, err error) {
	days := opts.Days
	if days == 0 {
		days = DefaultValidityDays
	}
	if days < 0 {
		return nil, nil, fmt.Errorf("certs: invalid validity %d days", days)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	key, err := rsa.GenerateKey(rand.Reader, certKeyBits)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	notBefore := now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Chat Server"},
			CommonName:   "localhost",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(time.Duration(days) * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	seen := make(map[string]bool)
	for _, h := range append(append([]string{}, DefaultHosts...), opts.Hosts...) {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// WriteSelfSigned generates a pair and writes it to certFile and keyFile.
func WriteSelfSigned(certFile, keyFile string, opts Options) error {
	certPEM, keyPEM, err := GenerateSelfSigned(opts)
	if err != nil {
		return err
	}
	if err := store.WriteFile(keyFile, keyPEM, keyMode); err != nil {
		return err
	}
	return store.WriteFile(certFile, certPEM, certMode)
}

// ServerTLSConfig loads certFile and keyFile for the listener.
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("certs: loading %s: %w", certFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig trusts caFile when given, otherwise the system roots.
// insecure disables verification for self-signed development servers.
func ClientTLSConfig(caFile string, insecure bool, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, // #nosec G402 -- opt-in via --tls-insecure
	}
	if caFile == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return nil, errors.New("certs: no certificates found in " + caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
