package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/lumenpipe/lumenpipe/service/db"
)

func listSubmissionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "submissions",
		Usage:   "List recorded submissions, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Filter by source account",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum rows to return",
				Value:   100,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Rows to skip",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter applied to each submission (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			submissions, err := store.ListSubmissions(context.Background(), db.ListSubmissionsParams{
				SourceAccount: c.String("source"),
				Limit:         int32(c.Int("limit")),
				Offset:        int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list submissions: %w", err)
			}

			// jq filters, when given, take over the output entirely
			if jqFilters := c.StringSlice("jq"); len(jqFilters) > 0 {
				return outputFiltered(submissions, jqFilters)
			}

			if c.Bool("json") {
				return outputJSON(submissions)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tRESULT\tTX HASH\tSOURCE\tCREATED")
			for _, sub := range submissions {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					sub.ID,
					sub.IntentKind,
					sub.Status,
					sub.ResultKind,
					truncate(sub.TxHash, 12),
					truncate(sub.SourceAccount, 12),
					sub.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d submissions\n", len(submissions))
			return nil
		},
	}
}

func getSubmissionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get one submission by id or transaction hash",
		ArgsUsage: "<id | tx-hash>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: submission id or tx hash")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			arg := c.Args().First()
			var sub *db.Submission
			if id, parseErr := strconv.ParseInt(arg, 10, 64); parseErr == nil {
				sub, err = store.GetSubmission(context.Background(), id)
			} else {
				sub, err = store.GetSubmissionByTxHash(context.Background(), arg)
			}
			if err != nil {
				return fmt.Errorf("failed to get submission: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(sub)
			}

			fmt.Printf("ID:      %d\n", sub.ID)
			fmt.Printf("Kind:    %s\n", sub.IntentKind)
			fmt.Printf("Status:  %s\n", sub.Status)
			if sub.ResultKind != "" {
				fmt.Printf("Result:  %s\n", sub.ResultKind)
			}
			if sub.TxHash != "" {
				fmt.Printf("Hash:    %s\n", sub.TxHash)
			}
			if sub.SourceAccount != "" {
				fmt.Printf("Source:  %s\n", sub.SourceAccount)
			}
			if sub.Summary != "" {
				fmt.Printf("Summary: %s\n", sub.Summary)
			}
			if sub.Error != "" {
				fmt.Printf("Error:   %s\n", sub.Error)
			}
			fmt.Printf("Created: %s\n", sub.CreatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

// outputFiltered runs each submission through the given jq programs and
// prints every emitted value as a JSON line.
func outputFiltered(submissions []*db.Submission, filters []string) error {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	for _, sub := range submissions {
		// Round-trip through JSON so gojq sees plain maps
		raw, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("failed to marshal submission: %w", err)
		}
		var doc interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal submission: %w", err)
		}

		for _, code := range compiled {
			iter := code.Run(doc)
			for {
				v, ok := iter.Next()
				if !ok {
					break
				}
				if err, isErr := v.(error); isErr {
					return fmt.Errorf("jq filter failed: %w", err)
				}
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
