package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func tokenCommands() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Credit token management commands",
		Subcommands: []*cli.Command{
			activateTokenCommand(),
			claimTokenCommand(),
			generateTokensCommand(),
		},
	}
}

func activateTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "activate",
		Usage:     "Activate a freshly minted credit token",
		ArgsUsage: "TOKEN",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("token is required")
			}

			cl := newAPIClient(c)
			if err := cl.ActivateToken(context.Background(), c.Args().Get(0)); err != nil {
				return fmt.Errorf("failed to activate token: %w", err)
			}

			fmt.Println("✓ Token activated")
			return nil
		},
	}
}

func claimTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "claim",
		Usage:     "Exchange a claim code for a credit token",
		ArgsUsage: "CLAIM_CODE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("claim code is required")
			}

			cl := newAPIClient(c)
			token, err := cl.ClaimToken(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to claim token: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]string{"token": token})
			}

			// Print the bare token so it can be piped into LUMENPIPE_TOKEN
			fmt.Println(token)
			return nil
		},
	}
}

func generateTokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Mint fresh credit tokens (requires the server's admin credential)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
			&cli.Int64Flag{
				Name:  "credits",
				Usage: "Credits per token",
				Value: 1000000,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of tokens to mint",
				Value: 1,
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)
			tokens, err := cl.GenerateTokens(context.Background(), c.Duration("ttl"), c.Int64("credits"), c.Int("count"))
			if err != nil {
				return fmt.Errorf("failed to generate tokens: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string][]string{"tokens": tokens})
			}

			for _, token := range tokens {
				fmt.Println(token)
			}
			return nil
		},
	}
}
