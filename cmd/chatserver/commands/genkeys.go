package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"securechat/internal/app"
	"securechat/internal/crypto"
)

func genkeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkeys",
		Short: "Create or load the server RSA key pair and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, generated, err := app.KeyFiles(cfg).LoadOrGenerate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if generated {
				fmt.Fprintf(out, "Key pair created (%d bits).\n", cfg.Keys.Bits)
			} else {
				fmt.Fprintln(out, "Key pair already present.")
			}
			fmt.Fprintf(out, "Private key: %s\nPublic key:  %s\nFingerprint: %s\n",
				cfg.Keys.PrivateKeyFile, cfg.Keys.PublicKeyFile, crypto.Fingerprint(kp.Public))
			return nil
		},
	}
}
