package main

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/starnotary/internal/signature"
	"github.com/spf13/cobra"
)

// ── keygen ───────────────────────────────────────────────────────────────────

var (
	keygenNetwork      string
	keygenUncompressed bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a wallet key and print its WIF and address",
	RunE: func(cmd *cobra.Command, args []string) error {
		net, err := signature.NetworkByName(keygenNetwork)
		if err != nil {
			return err
		}
		key, err := signature.GenerateKey()
		if err != nil {
			return err
		}
		compressed := !keygenUncompressed
		wif := signature.EncodeWIF(key, compressed, net)
		addr := signature.Address(key.PubKey(), compressed, net.PubKeyHashID)

		if outputFormat == "json" {
			return printJSON(map[string]string{"network": net.Name, "wif": wif, "address": addr})
		}
		fmt.Printf("Network: %s\n", net.Name)
		fmt.Printf("Address: %s\n", addr)
		fmt.Printf("WIF:     %s\n\n", wif)
		fmt.Println("Keep the WIF secret. Anyone holding it can register stars as this address.")
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenNetwork, "network", signature.MainNet.Name, "Address network: mainnet or testnet")
	keygenCmd.Flags().BoolVar(&keygenUncompressed, "uncompressed", false, "Derive the address from the uncompressed public key")
}

// ── address ──────────────────────────────────────────────────────────────────

var addressCmd = &cobra.Command{
	Use:   "address <wif>",
	Short: "Print the address for a WIF private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, compressed, net, err := signature.DecodeWIF(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		fmt.Println(signature.Address(key.PubKey(), compressed, net.PubKeyHashID))
		return nil
	},
}

// ── sign ─────────────────────────────────────────────────────────────────────

var signCmd = &cobra.Command{
	Use:   "sign <wif> <message>",
	Short: "Sign a message with a WIF private key",
	Long: `sign produces a base64 compact signature in the Bitcoin signed-message
format, suitable for starctl validate:

  starctl sign "$WIF" "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH:1700000000:starRegistry"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, compressed, _, err := signature.DecodeWIF(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		fmt.Println(signature.SignMessage(key, args[1], compressed))
		return nil
	},
}
