package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"securechat/internal/app"
	"securechat/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config

	host           string
	port           int
	password       string
	maxClients     int
	enableTLS      bool
	showConfig     bool
	logLevel       string
	metricsAddress string
)

func Execute() error {
	root := &cobra.Command{
		Use:          "chatserver",
		Short:        "Encrypted multi-client chat server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showConfig {
				cfg.Display(cmd.OutOrStdout())
				return nil
			}
			return run()
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "TOML config file")

	f := root.Flags()
	f.StringVar(&host, "host", "", "listen address (0.0.0.0 for every interface)")
	f.IntVar(&port, "port", 0, "listen port")
	f.StringVar(&password, "password", "", "server password")
	f.IntVar(&maxClients, "max-clients", 0, "maximum authenticated clients")
	f.BoolVar(&enableTLS, "tls", false, "wrap connections in TLS")
	f.BoolVar(&showConfig, "show-config", false, "print the effective configuration and exit")
	f.StringVar(&logLevel, "log-level", "", "ERROR, WARNING, NOTICE, INFO or DEBUG")
	f.StringVar(&metricsAddress, "metrics-address", "", "serve prometheus metrics on this address")

	root.AddCommand(gencertCmd(), genkeysCmd(), fingerprintCmd())
	return root.Execute()
}

// loadConfig layers defaults, file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var c *config.Config
	if cfgFile != "" {
		var err error
		if c, err = config.LoadFile(cfgFile); err != nil {
			return nil, fmt.Errorf("failed to load config file '%v': %w", cfgFile, err)
		}
	} else {
		c = config.Default()
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		c.Server.Host = host
	}
	if f.Changed("port") {
		c.Server.Port = port
	}
	if f.Changed("password") {
		c.Server.Password = password
	}
	if f.Changed("max-clients") {
		c.SetMaxClients(maxClients)
	}
	if f.Changed("tls") {
		c.TLS.Enable = enableTLS
	}
	if f.Changed("log-level") {
		c.Logging.Level = logLevel
	}
	if f.Changed("metrics-address") {
		c.Metrics.Address = metricsAddress
	}
	if err := c.FixupAndValidate(); err != nil {
		return nil, err
	}
	return c, nil
}

func run() error {
	// Set the umask to something "paranoid".
	syscall.Umask(0o077)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)
	defer signal.Stop(haltCh)
	defer signal.Stop(rotateCh)

	a.Start()
	defer a.Shutdown()

	// Halt the server gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		a.Shutdown()
	}()

	// Rotate server logs upon SIGHUP.
	go func() {
		for range rotateCh {
			a.RotateLog()
		}
	}()

	// Wait for the server to explode or be terminated.
	a.Wait()
	return nil
}
