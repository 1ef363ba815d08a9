package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ptoken/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the ptoken service",
		Subcommands: []*cli.Command{
			clientAnalyzeCommand(),
			clientHistoryCommand(),
			clientCostsCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set PTOKEN_SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, nil, cliLogger()), nil
}

func clientAnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze a transaction through the server",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Network (mainnet or devnet)",
				Value:   "mainnet",
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction signature is required")
			}

			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			result, err := cl.Analyze(context.Background(), c.Args().Get(0), c.String("network"))
			if err != nil {
				return err
			}

			return writeOutput(c, result, func(w io.Writer) { printResult(w, result) })
		},
	}
}

func clientHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent analyses recorded by the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Only list analyses for this network",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of analyses (server default 5, max 100)",
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			analyses, err := cl.History(context.Background(), c.String("network"), c.Int("limit"))
			if err != nil {
				return err
			}

			return writeOutput(c, analyses, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SIGNATURE\tNETWORK\tINSTRUCTION\tSAVINGS (SOL)\tSAVINGS %\tANALYZED")
				for _, a := range analyses {
					instruction, savings, pct := "-", "-", "-"
					if a.Result != nil {
						instruction = a.Result.InstructionType
						savings = a.Result.AbsoluteSavingsSOL.String()
						pct = a.Result.PercentageSavings.StringFixed(2)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						a.Signature,
						a.Network,
						instruction,
						savings,
						pct,
						a.CreatedAt.Format(time.RFC3339),
					)
				}
				tw.Flush()
			})
		},
	}
}

func clientCostsCommand() *cli.Command {
	return &cli.Command{
		Name:  "costs",
		Usage: "Print the cost table the server analyzes with",
		Flags: []cli.Flag{jqFlag()},
		Action: func(c *cli.Context) error {
			cl, err := newAPIClient(c)
			if err != nil {
				return err
			}

			entries, err := cl.Costs(context.Background())
			if err != nil {
				return err
			}

			return writeOutput(c, entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "INSTRUCTION\tLEGACY CU\tP-TOKEN CU")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%d\t%d\n", e.Instruction, e.LegacyCU, e.OptimizedCU)
				}
				tw.Flush()
			})
		},
	}
}
