package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/config"
	"github.com/brojonat/ptoken/service/costs"
	"github.com/brojonat/ptoken/service/solana"
	"github.com/urfave/cli/v2"
)

func jqFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "jq",
		Usage: "Filter the JSON output with a jq expression",
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Estimate p-token savings for a transaction via Solana RPC",
		ArgsUsage: "SIGNATURE",
		Description: `Fetch a confirmed transaction from Solana RPC and estimate how much compute
and priority fee it would have saved had the token program been p-token.

RPC endpoints come from SOLANA_MAINNET_RPC_URLS / SOLANA_DEVNET_RPC_URLS
unless --rpc-url is given.

Example:
  ptoken analyze 5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7
  ptoken analyze SIGNATURE --network devnet --jq '.percentage_savings'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Network (mainnet or devnet)",
				Value:   "mainnet",
			},
			&cli.StringSliceFlag{
				Name:  "rpc-url",
				Usage: "RPC endpoint for the selected network (repeatable)",
			},
			&cli.StringFlag{
				Name:    "cost-table",
				Usage:   "JSON cost table overriding the built-in one",
				EnvVars: []string{"COST_TABLE_PATH"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall timeout including RPC retries",
				Value: 60 * time.Second,
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction signature is required")
			}
			signature := c.Args().Get(0)

			network, err := analysis.ParseNetwork(c.String("network"))
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.CostTablePath = c.String("cost-table")
			if urls := c.StringSlice("rpc-url"); len(urls) > 0 {
				if network == analysis.NetworkDevnet {
					cfg.SolanaDevnetRPCURLs = urls
				} else {
					cfg.SolanaMainnetRPCURLs = urls
				}
			}

			analyzer, err := solana.NewAnalyzerFromConfig(cfg, nil, cliLogger())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			result, err := analyzer.Analyze(ctx, signature, network)
			if err != nil {
				if analysis.IsAnalysisError(err) {
					return fmt.Errorf("%s", analysis.UserMessage(err))
				}
				return fmt.Errorf("failed to analyze transaction: %w", err)
			}

			return writeOutput(c, result, func(w io.Writer) { printResult(w, result) })
		},
	}
}

func projectCommand() *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Project savings for many executions of one instruction",
		Description: `Compute legacy and p-token CU totals and priority fees for COUNT executions
of an instruction at a priority fee of PRICE micro-lamports per CU.

Example:
  ptoken project --instruction TransferChecked --count 100000 --price 50000`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "instruction",
				Aliases:  []string{"i"},
				Usage:    "Instruction name as it appears in program logs",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Number of transactions",
				Value:   1,
			},
			&cli.Uint64Flag{
				Name:    "price",
				Aliases: []string{"p"},
				Usage:   "Priority fee in micro-lamports per CU",
			},
			&cli.StringFlag{
				Name:    "cost-table",
				Usage:   "JSON cost table overriding the built-in one",
				EnvVars: []string{"COST_TABLE_PATH"},
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			table, err := costs.LoadFile(c.String("cost-table"))
			if err != nil {
				return err
			}

			params := analysis.DefaultFeeParams()
			if cfg, err := config.Load(); err == nil {
				params = cfg.FeeParams()
			}

			p, err := analysis.Project(table, c.String("instruction"), c.Uint64("count"), c.Uint64("price"), params)
			if err != nil {
				return err
			}

			return writeOutput(c, p, func(w io.Writer) { printProjection(w, p) })
		},
	}
}

func costsCommand() *cli.Command {
	return &cli.Command{
		Name:  "costs",
		Usage: "Print the instruction cost table",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cost-table",
				Usage:   "JSON cost table overriding the built-in one",
				EnvVars: []string{"COST_TABLE_PATH"},
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			table, err := costs.LoadFile(c.String("cost-table"))
			if err != nil {
				return err
			}
			return writeOutput(c, table, func(w io.Writer) { printCostTable(w, table) })
		},
	}
}

// cliLogger logs only errors, to stderr, so command output stays clean.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
