package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lumenpipe/lumenpipe/client"
)

func submitCommands() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Compile and submit transaction intents",
		Subcommands: []*cli.Command{
			submitIntentCommand(),
			submitXDRCommand(),
			payCommand(),
			creditsCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(c.String("server-url"), c.String("token"), nil, logger)
}

// readIntent loads an intent document from a file path or stdin ("-").
func readIntent(path string) (*client.TransactionIntent, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read intent: %w", err)
	}

	var intent client.TransactionIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse intent JSON: %w", err)
	}
	return &intent, nil
}

func printOutcome(c *cli.Context, outcome *client.SubmissionOutcome) error {
	if c.Bool("json") {
		return outputJSON(outcome)
	}

	if outcome.Status == "success" {
		fmt.Printf("✓ Transaction submitted\n")
		fmt.Printf("  Hash:    %s\n", outcome.TxHash)
		if outcome.Summary != "" {
			fmt.Printf("  Summary: %s\n", outcome.Summary)
		}
		if outcome.CreditsRemaining != nil {
			fmt.Printf("  Credits: %d remaining\n", *outcome.CreditsRemaining)
		}
		return nil
	}

	fmt.Printf("✗ Submission failed\n")
	fmt.Printf("  Kind:      %s\n", outcome.Kind)
	fmt.Printf("  Error:     %s\n", outcome.Error)
	fmt.Printf("  Retryable: %t\n", outcome.Retryable)
	if outcome.RawDetails != "" {
		fmt.Printf("  Details:   %s\n", outcome.RawDetails)
	}
	return nil
}

func submitIntentCommand() *cli.Command {
	return &cli.Command{
		Name:      "intent",
		Usage:     "Submit an intent document (JSON file, or '-' for stdin)",
		ArgsUsage: "INTENT_FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("intent file is required (use '-' for stdin)")
			}
			if c.String("token") == "" {
				return fmt.Errorf("token is required (set LUMENPIPE_TOKEN env var or use --token)")
			}

			intent, err := readIntent(c.Args().Get(0))
			if err != nil {
				return err
			}

			cl := newAPIClient(c)
			outcome, err := cl.Submit(context.Background(), intent)
			if outcome != nil {
				if printErr := printOutcome(c, outcome); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
}

func submitXDRCommand() *cli.Command {
	return &cli.Command{
		Name:      "xdr",
		Usage:     "Submit a pre-built base64 transaction envelope untouched",
		ArgsUsage: "BASE64_ENVELOPE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("base64 envelope is required")
			}
			if c.String("token") == "" {
				return fmt.Errorf("token is required (set LUMENPIPE_TOKEN env var or use --token)")
			}

			cl := newAPIClient(c)
			outcome, err := cl.SubmitXDR(context.Background(), c.Args().Get(0))
			if outcome != nil {
				if printErr := printOutcome(c, outcome); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
}

// payCommand is a convenience wrapper that builds a payment intent from flags.
func payCommand() *cli.Command {
	return &cli.Command{
		Name:      "pay",
		Usage:     "Submit a payment intent built from flags",
		ArgsUsage: "DESTINATION AMOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source account (defaults to the service signer's account)",
			},
			&cli.StringFlag{
				Name:  "asset-code",
				Usage: "Asset code (omit for the native asset)",
			},
			&cli.StringFlag{
				Name:  "asset-issuer",
				Usage: "Asset issuer (required with --asset-code)",
			},
			&cli.StringFlag{
				Name:  "memo",
				Usage: "Memo value",
			},
			&cli.StringFlag{
				Name:  "memo-kind",
				Usage: "Memo kind (text, id, hash, return)",
				Value: "text",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("destination and amount are required")
			}
			if c.String("token") == "" {
				return fmt.Errorf("token is required (set LUMENPIPE_TOKEN env var or use --token)")
			}

			intent := &client.TransactionIntent{
				Kind:               "payment",
				SourceAccount:      c.String("source"),
				DestinationAccount: c.Args().Get(0),
				Amount:             c.Args().Get(1),
				Memo:               c.String("memo"),
			}
			if intent.Memo != "" {
				intent.MemoKind = c.String("memo-kind")
			}
			if code := c.String("asset-code"); code != "" {
				intent.Asset = &client.AssetRef{
					Code:   code,
					Issuer: c.String("asset-issuer"),
				}
			}

			cl := newAPIClient(c)
			outcome, err := cl.Submit(context.Background(), intent)
			if outcome != nil {
				if printErr := printOutcome(c, outcome); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
}

func creditsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credits",
		Usage: "Check the credit balance behind the configured token",
		Action: func(c *cli.Context) error {
			if c.String("token") == "" {
				return fmt.Errorf("token is required (set LUMENPIPE_TOKEN env var or use --token)")
			}

			cl := newAPIClient(c)
			balance, err := cl.CheckCredits(context.Background())
			if err != nil {
				return fmt.Errorf("failed to check credits: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(balance)
			}

			fmt.Printf("Credits:   %d\n", balance.CreditsRemaining)
			fmt.Printf("Activated: %t\n", balance.Activated)
			return nil
		},
	}
}
