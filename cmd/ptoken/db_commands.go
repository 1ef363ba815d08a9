package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the analysis history schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema up to date")
			return nil
		},
	}
}

func listAnalysesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-analyses",
		Usage:   "List recent analyses",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Filter by network (mainnet, devnet)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of analyses",
				Value:   db.DefaultHistoryLimit,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			analyses, err := store.ListRecentAnalyses(context.Background(), db.ListAnalysesParams{
				Network: c.String("network"),
				Limit:   db.NormalizeLimit(int32(c.Int("limit"))),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, analyses)
			}

			printAnalyses(c.App.Writer, analyses)
			fmt.Fprintf(os.Stderr, "\nTotal: %d analyses\n", len(analyses))
			return nil
		},
	}
}

func getAnalysisCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-analysis",
		Usage:     "Show the latest stored analysis of a signature",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Network (mainnet or devnet)",
				Value:   "mainnet",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction signature is required")
			}
			network, err := analysis.ParseNetwork(c.String("network"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			a, err := store.GetAnalysis(context.Background(), c.Args().Get(0), network)
			if errors.Is(err, db.ErrAnalysisNotFound) {
				return fmt.Errorf("no analysis stored for %s on %s", c.Args().Get(0), network)
			}
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, a)
			}
			fmt.Fprintf(c.App.Writer, "Stored:              %s\n", a.CreatedAt.Format(time.RFC3339))
			printResult(c.App.Writer, a.Result)
			return nil
		},
	}
}

func printAnalyses(w io.Writer, analyses []*db.Analysis) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIGNATURE\tNETWORK\tINSTRUCTION\tSAVINGS %\tCREATED")
	for _, a := range analyses {
		instruction, pct := "-", "-"
		if a.Result != nil {
			instruction = a.Result.InstructionType
			pct = a.Result.PercentageSavings.StringFixed(2)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			analysis.TruncateSignature(a.Signature),
			a.Network,
			instruction,
			pct,
			a.CreatedAt.Format(time.RFC3339),
		)
	}
	tw.Flush()
}

// getStore opens a connection pool from --database-url.
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
