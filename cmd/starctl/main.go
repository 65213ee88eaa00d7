package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/starnotary/internal/signature"
	"github.com/jmerrifield20/starnotary/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL    string
	cfgFile      string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "starctl",
	Short: "Star notary CLI",
	Long: `starctl is the command-line interface for a starnotary server.

It manages wallet keys locally, walks a wallet through the
request / sign / submit registration flow, and reads the ledger.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.starctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("starctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8000"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.starctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "starnotary server URL (default http://localhost:8000)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout for server calls")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(starsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if tok := viper.GetString("registration_token"); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serverURL, opts...)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ── request ──────────────────────────────────────────────────────────────────

var requestCmd = &cobra.Command{
	Use:   "request <address>",
	Short: "Ask the notary for a message to sign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()

		req, err := c.RequestValidation(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request validation: %w", err)
		}
		if outputFormat == "json" {
			return printJSON(req)
		}
		fmt.Printf("Message: %s\n", req.Message)
		fmt.Printf("Window:  %ds\n\n", req.ValidationWindow)
		fmt.Println("Next: starctl sign <wif> <message>, then starctl validate <address> <signature>")
		return nil
	},
}

// ── validate ─────────────────────────────────────────────────────────────────

var validateCmd = &cobra.Command{
	Use:   "validate <address> <signature>",
	Short: "Submit the signed message and obtain a registration grant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()

		tok, err := c.ValidateSignature(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("validate signature: %w", err)
		}
		if outputFormat == "json" {
			return printJSON(tok)
		}
		fmt.Printf("✓ Signature accepted for %s\n", tok.Status.Address)
		fmt.Printf("  Window: %ds\n", tok.Status.ValidationWindow)
		if tok.RegistrationToken != "" {
			fmt.Printf("  Token:  %s\n", tok.RegistrationToken)
			fmt.Println("\nPass it to submit with --token or STARCTL_REGISTRATION_TOKEN")
		}
		return nil
	},
}

// ── submit ───────────────────────────────────────────────────────────────────

var (
	starRA    string
	starDec   string
	starMag   string
	starCen   string
	starStory string
	submitTok string
)

func addStarFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&starRA, "ra", "", "Right ascension (e.g. \"16h 29m 1.0s\")")
	cmd.Flags().StringVar(&starDec, "dec", "", "Declination (e.g. \"-26° 29' 24.9\")")
	cmd.Flags().StringVar(&starMag, "mag", "", "Magnitude")
	cmd.Flags().StringVar(&starCen, "cen", "", "Constellation")
	cmd.Flags().StringVar(&starStory, "story", "", "Story, ASCII, at most 250 words")
	_ = cmd.MarkFlagRequired("ra")
	_ = cmd.MarkFlagRequired("dec")
	_ = cmd.MarkFlagRequired("story")
}

func starFromFlags() client.Star {
	return client.Star{RA: starRA, Dec: starDec, Mag: starMag, Cen: starCen, Story: starStory}
}

var submitCmd = &cobra.Command{
	Use:   "submit <address>",
	Short: "Register a star for a validated address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if submitTok != "" {
			c.SetBearerToken(submitTok)
		}
		ctx, cancel := callContext()
		defer cancel()

		blk, err := c.SubmitStar(ctx, args[0], starFromFlags())
		if err != nil {
			return fmt.Errorf("submit star: %w", err)
		}
		return printBlock(blk)
	},
}

func init() {
	addStarFlags(submitCmd)
	submitCmd.Flags().StringVar(&submitTok, "token", "", "Registration token returned by validate")
}

// ── register ─────────────────────────────────────────────────────────────────

var registerWIF string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Run the whole request, sign and submit flow with a local key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, compressed, net, err := signature.DecodeWIF(strings.TrimSpace(registerWIF))
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		addr := signature.Address(key.PubKey(), compressed, net.PubKeyHashID)

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()

		req, err := c.RequestValidation(ctx, addr)
		if err != nil {
			return fmt.Errorf("request validation: %w", err)
		}
		fmt.Printf("Signing challenge for %s (%ds left)\n", addr, req.ValidationWindow)

		sig := signature.SignMessage(key, req.Message, compressed)
		if _, err := c.ValidateSignature(ctx, addr, sig); err != nil {
			return fmt.Errorf("validate signature: %w", err)
		}
		fmt.Println("✓ Signature accepted")

		blk, err := c.SubmitStar(ctx, addr, starFromFlags())
		if err != nil {
			return fmt.Errorf("submit star: %w", err)
		}
		fmt.Println("✓ Star registered")
		fmt.Println()
		return printBlock(blk)
	},
}

func init() {
	addStarFlags(registerCmd)
	registerCmd.Flags().StringVar(&registerWIF, "wif", "", "Wallet private key in WIF (see starctl keygen)")
	_ = registerCmd.MarkFlagRequired("wif")
}

// ── block ────────────────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block <height>",
	Short: "Print the block at a height",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		height, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || height < 0 {
			return fmt.Errorf("height must be a non-negative integer, got %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()

		blk, err := c.GetBlock(ctx, height)
		if err != nil {
			return fmt.Errorf("get block: %w", err)
		}
		return printBlock(blk)
	},
}

// ── stars ────────────────────────────────────────────────────────────────────

var starsCmd = &cobra.Command{
	Use:   "stars <hash:HASH | address:ADDRESS>",
	Short: "Look up registrations by block hash or wallet address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, value, ok := strings.Cut(args[0], ":")
		if !ok || value == "" {
			return fmt.Errorf("selector must be hash:<hash> or address:<address>")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()

		switch kind {
		case "hash":
			blk, err := c.GetStarByHash(ctx, value)
			if err != nil {
				return fmt.Errorf("get star: %w", err)
			}
			return printBlock(blk)
		case "address":
			blocks, err := c.GetStarsByAddress(ctx, value)
			if err != nil {
				return fmt.Errorf("get stars: %w", err)
			}
			return printBlocks(blocks)
		default:
			return fmt.Errorf("unknown selector %q: use hash or address", kind)
		}
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify [height]",
	Short: "Validate one block, or the whole chain when no height is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()

		if len(args) == 1 {
			height, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid height %q", args[0])
			}
			ok, err := c.ValidateBlock(ctx, height)
			if err != nil {
				return fmt.Errorf("validate block: %w", err)
			}
			if outputFormat == "json" {
				return printJSON(map[string]any{"height": height, "valid": ok})
			}
			if !ok {
				return fmt.Errorf("block %d has been tampered with", height)
			}
			fmt.Printf("✓ Block %d is valid\n", height)
			return nil
		}

		res, err := c.VerifyChain(ctx)
		if err != nil {
			return fmt.Errorf("verify chain: %w", err)
		}
		if outputFormat == "json" {
			return printJSON(res)
		}
		if !res.Valid {
			return fmt.Errorf("chain invalid at heights %v", res.FailedHeights)
		}
		fmt.Println("✓ Chain is valid")
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the starctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("starctl", version)
	},
}

// ── output ───────────────────────────────────────────────────────────────────

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBlock(b *client.Block) error {
	if outputFormat == "json" {
		return printJSON(b)
	}
	fmt.Printf("Height:   %d\n", b.Height)
	fmt.Printf("Hash:     %s\n", b.Hash)
	if b.PreviousBlockHash != "" {
		fmt.Printf("Previous: %s\n", b.PreviousBlockHash)
	}
	fmt.Printf("Time:     %s\n", time.Unix(b.Time, 0).UTC().Format(time.RFC3339))
	owner, s, err := b.StarBody()
	if err != nil {
		fmt.Printf("Body:     %s\n", b.Body)
		return nil
	}
	fmt.Printf("Owner:    %s\n", owner)
	fmt.Printf("RA/Dec:   %s / %s\n", s.RA, s.Dec)
	fmt.Printf("Story:    %s\n", s.StoryDecoded)
	return nil
}

func printBlocks(blocks []client.Block) error {
	if outputFormat == "json" {
		return printJSON(blocks)
	}
	if len(blocks) == 0 {
		fmt.Println("no registrations")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HEIGHT\tHASH\tRA\tDEC\tSTORY")
	for i := range blocks {
		_, s, err := blocks[i].StarBody()
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", blocks[i].Height, blocks[i].Hash, s.RA, s.Dec, s.StoryDecoded)
	}
	return w.Flush()
}
