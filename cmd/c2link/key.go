package main

import (
	"encoding/hex"
	"strings"

	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/temoto/c2link/internal/config"
	"github.com/temoto/c2link/mavlink"
)

var (
	flagQR    bool
	flagQRPNG string
)

var keyCmd = &cobra.Command{
	Use:   "key [PASSPHRASE]",
	Short: "Print signing key derived from passphrase, for vehicle provisioning",
	Long: "Print signing key as hex, derived from argument or --passphrase.\n" +
		"With --qr print QR code to terminal, --png writes QR image file.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pass := env.GetString(config.KeyPassphrase)
		if len(args) == 1 {
			pass = args[0]
		}
		if pass == "" {
			return errors.NotValidf("empty passphrase")
		}
		key := mavlink.DeriveKey(pass)
		text := hex.EncodeToString(key[:])
		printf("%s\n", text)
		if !flagQR && flagQRPNG == "" {
			return nil
		}
		qr, err := qrcode.New(text, qrcode.High)
		if err != nil {
			return errors.Annotate(err, "QR")
		}
		if flagQR {
			printf("%s", qrText(qr))
		}
		if flagQRPNG != "" {
			return errors.Annotate(qr.WriteFile(256, flagQRPNG), "QR png")
		}
		return nil
	},
}

func init() {
	keyCmd.Flags().BoolVar(&flagQR, "qr", false, "print QR code")
	keyCmd.Flags().StringVar(&flagQRPNG, "png", "", "write QR code PNG to file")
}

// qrText renders two characters per module, terminal cells are about twice taller than wide.
func qrText(qr *qrcode.QRCode) string {
	bitmap := qr.Bitmap()
	b := strings.Builder{}
	for _, row := range bitmap {
		for _, black := range row {
			if black {
				b.WriteString("██")
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteRune('\n')
	}
	return b.String()
}
