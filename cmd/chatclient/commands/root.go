package commands

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"securechat/internal/certs"
	"securechat/internal/client"
	"securechat/internal/config"
	"securechat/internal/crypto"
	"securechat/internal/log"
	"securechat/internal/store"
	"securechat/internal/util/memzero"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5555
	defaultKeyFile = "server_public_key.pem"
	dialTimeout    = 15 * time.Second
)

var (
	host        string
	port        int
	keyFile     string
	nickname    string
	useTLS      bool
	tlsCA       string
	tlsInsecure bool
	logLevel    string
)

func Execute() error {
	root := &cobra.Command{
		Use:           "chatclient",
		Short:         "Terminal client for the encrypted chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
	}

	f := root.Flags()
	f.StringVar(&host, "host", "", "server host (env "+config.EnvHost+")")
	f.IntVar(&port, "port", 0, "server port (env "+config.EnvPort+")")
	f.StringVar(&keyFile, "key", "", "server public key PEM (env "+config.EnvPublicKeyFile+")")
	f.StringVar(&nickname, "nick", "", "nickname")
	f.BoolVar(&useTLS, "tls", false, "connect with TLS")
	f.StringVar(&tlsCA, "tls-ca", "", "CA or self-signed certificate to trust")
	f.BoolVar(&tlsInsecure, "tls-insecure", false, "skip TLS certificate verification")
	f.StringVar(&logLevel, "log-level", "WARNING", "client log level")

	err := root.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func run(cmd *cobra.Command) error {
	backend, err := log.New("", logLevel, false)
	if err != nil {
		return err
	}
	l := backend.GetLogger("client")

	p := newTerminalPrompter()
	f := cmd.Flags()

	addrHost := envOr(config.EnvHost, defaultHost)
	if f.Changed("host") {
		addrHost = host
	} else if addrHost, err = p.line("Server host", addrHost); err != nil {
		return err
	}

	addrPort := envOr(config.EnvPort, strconv.Itoa(defaultPort))
	if f.Changed("port") {
		addrPort = strconv.Itoa(port)
	} else if addrPort, err = p.line("Server port", addrPort); err != nil {
		return err
	}

	keyPath := envOr(config.EnvPublicKeyFile, defaultKeyFile)
	if f.Changed("key") {
		keyPath = keyFile
	} else if keyPath, err = p.line("Server public key", keyPath); err != nil {
		return err
	}
	serverKey, err := store.LoadPublicKey(keyPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Server key fingerprint: %s\n", crypto.Fingerprint(serverKey))

	nick := nickname
	for strings.TrimSpace(nick) == "" {
		if nick, err = p.line("Nickname", ""); err != nil {
			return err
		}
	}

	pw, err := p.secret("Password")
	if err != nil {
		return err
	}
	defer memzero.Zero(pw)

	var tlsCfg *tls.Config
	if useTLS || tlsCA != "" || tlsInsecure {
		if tlsCfg, err = certs.ClientTLSConfig(tlsCA, tlsInsecure, ""); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "Generating session keys...")
	c, err := client.Dial(context.Background(), client.Config{
		Address:     net.JoinHostPort(addrHost, addrPort),
		ServerKey:   serverKey,
		Nickname:    nick,
		Password:    pw,
		TLS:         tlsCfg,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	l.Noticef("Connected to %s as %s", net.JoinHostPort(addrHost, addrPort), c.Nickname())

	fmt.Fprintln(os.Stderr, "Authenticated. Type a message and press Enter, /quit to leave.")
	return chat(c, os.Stdin, os.Stdout)
}

// chat relays stdin lines to the server and broadcasts to out until either
// side ends.
func chat(c *client.Client, in io.Reader, out io.Writer) error {
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := c.Receive()
			if err != nil {
				recvErr <- err
				return
			}
			fmt.Fprintln(out, msg)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case err := <-recvErr:
			fmt.Fprintln(out, "Disconnected from server.")
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				if errors.Is(err, client.ErrMessageTooLong) {
					fmt.Fprintf(out, "Message too long (max %d bytes).\n", c.MaxMessageLength())
					continue
				}
				return err
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
