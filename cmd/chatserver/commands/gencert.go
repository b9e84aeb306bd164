package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"securechat/internal/certs"
)

func gencertCmd() *cobra.Command {
	var (
		certFile string
		keyFile  string
		days     int
		hosts    []string
	)
	cmd := &cobra.Command{
		Use:   "gencert",
		Short: "Generate a self-signed TLS certificate for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if certFile == "" {
				certFile = cfg.TLS.CertFile
			}
			if keyFile == "" {
				keyFile = cfg.TLS.KeyFile
			}
			if err := certs.WriteSelfSigned(certFile, keyFile, certs.Options{Hosts: hosts, Days: days}); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Certificate: %s\n", certFile)
			fmt.Fprintf(out, "Private key: %s (0600)\n", keyFile)
			fmt.Fprintf(out, "Valid until: %s\n", time.Now().AddDate(0, 0, days).Format("2006-01-02"))
			fmt.Fprintln(out, "Self-signed certificates are for development only.")
			return nil
		},
	}
	cmd.Flags().StringVar(&certFile, "cert", "", "certificate output path (default TLS.CertFile)")
	cmd.Flags().StringVar(&keyFile, "key", "", "private key output path (default TLS.KeyFile)")
	cmd.Flags().IntVar(&days, "days", certs.DefaultValidityDays, "validity in days")
	cmd.Flags().StringArrayVar(&hosts, "host", nil, "extra DNS name or IP for the certificate (repeatable)")
	return cmd
}
