package commands

import (
	"fmt"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"securechat/internal/crypto"
	"securechat/internal/store"
)

func fingerprintCmd() *cobra.Command {
	var qr bool
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the server public key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := store.LoadPublicKey(cfg.Keys.PublicKeyFile)
			if err != nil {
				return err
			}
			fp := crypto.Fingerprint(pub)
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", fp)
			if qr {
				qrterminal.GenerateWithConfig(fp, qrterminal.Config{
					Level:     qrterminal.M,
					Writer:    cmd.OutOrStdout(),
					BlackChar: qrterminal.BLACK,
					WhiteChar: qrterminal.WHITE,
					QuietZone: 1,
				})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&qr, "qr", false, "also render the fingerprint as a terminal QR code")
	return cmd
}
