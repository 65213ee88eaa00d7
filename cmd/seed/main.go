// cmd/seed registers a set of sample stars against a running starnotary
// server for development. Each star is registered by a freshly generated
// wallet, so running it twice simply appends another batch.
//
// Usage:
//
//	go run ./cmd/seed
//	STARNOTARY_URL=http://localhost:8000 go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmerrifield20/starnotary/internal/signature"
	"github.com/jmerrifield20/starnotary/pkg/client"
	"golang.org/x/sync/errgroup"
)

const defaultURL = "http://localhost:8000"

// seedStars are well-known stars with a short story each.
var seedStars = []client.Star{
	{RA: "16h 29m 24.4s", Dec: "-26° 25' 55.2", Mag: "0.96", Cen: "Scorpius", Story: "Antares, the heart of the scorpion"},
	{RA: "06h 45m 8.9s", Dec: "-16° 42' 58.0", Mag: "-1.46", Cen: "Canis Major", Story: "Sirius, brightest star in the night sky"},
	{RA: "05h 55m 10.3s", Dec: "+07° 24' 25.4", Mag: "0.42", Cen: "Orion", Story: "Betelgeuse, the red shoulder of Orion"},
	{RA: "18h 36m 56.3s", Dec: "+38° 47' 1.3", Mag: "0.03", Cen: "Lyra", Story: "Vega, once and future pole star"},
	{RA: "02h 31m 49.1s", Dec: "+89° 15' 50.8", Mag: "1.98", Cen: "Ursa Minor", Story: "Polaris, for finding the way home"},
	{RA: "14h 39m 36.5s", Dec: "-60° 50' 2.3", Mag: "-0.27", Cen: "Centaurus", Story: "Alpha Centauri, our nearest neighbour"},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := os.Getenv("STARNOTARY_URL")
	if base == "" {
		base = defaultURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	admin, err := client.New(base)
	if err != nil {
		return err
	}
	info, err := admin.Chain(ctx)
	if err != nil {
		return fmt.Errorf("reach %s: %w", base, err)
	}
	fmt.Printf("connected to %s (height %d)\n", base, info.Height)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, s := range seedStars {
		s := s
		g.Go(func() error {
			// One client per wallet: each holds its own registration token.
			c, err := client.New(base)
			if err != nil {
				return err
			}
			height, err := register(gctx, c, s)
			if err != nil {
				return fmt.Errorf("register %s: %w", s.Cen, err)
			}
			fmt.Printf("  seed  %-12s height %d\n", s.Cen, height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	res, err := admin.VerifyChain(ctx)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	if !res.Valid {
		return fmt.Errorf("chain invalid after seeding at heights %v", res.FailedHeights)
	}
	fmt.Printf("seeded %d star(s), chain valid\n", len(seedStars))
	return nil
}

func register(ctx context.Context, c *client.Client, s client.Star) (int64, error) {
	key, err := signature.GenerateKey()
	if err != nil {
		return 0, err
	}
	addr := signature.Address(key.PubKey(), true, signature.MainNet.PubKeyHashID)

	req, err := c.RequestValidation(ctx, addr)
	if err != nil {
		return 0, err
	}
	if _, err := c.ValidateSignature(ctx, addr, signature.SignMessage(key, req.Message, true)); err != nil {
		return 0, err
	}
	blk, err := c.SubmitStar(ctx, addr, s)
	if err != nil {
		return 0, err
	}
	return blk.Height, nil
}
