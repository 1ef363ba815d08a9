package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ptoken/service/temporal"
	"github.com/urfave/cli/v2"
)

func batchCommands() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Batch analysis commands (Temporal)",
		Subcommands: []*cli.Command{
			batchStartCommand(),
			batchStatusCommand(),
		},
	}
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		cliLogger(),
	)
}

func batchStartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a batch analysis workflow",
		ArgsUsage: "[SIGNATURE...]",
		Description: `Start a BatchAnalysisWorkflow for up to 100 signatures. Signatures are read
from the arguments and, with --file, one per line from a file ("-" for stdin).

Example:
  ptoken batch start --network mainnet SIG1 SIG2
  cat signatures.txt | ptoken batch start --file -`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "Network (mainnet or devnet)",
				Value:   "mainnet",
			},
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "File with one signature per line (\"-\" for stdin)",
			},
		},
		Action: func(c *cli.Context) error {
			signatures := c.Args().Slice()
			if path := c.String("file"); path != "" {
				fromFile, err := readSignatures(path)
				if err != nil {
					return err
				}
				signatures = append(signatures, fromFile...)
			}

			input := temporal.BatchAnalysisInput{
				Network:    c.String("network"),
				Signatures: signatures,
			}
			if err := input.Validate(); err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			workflowID, err := tc.StartBatchAnalysis(context.Background(), input)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"workflow_id": workflowID})
			}
			fmt.Fprintf(c.App.Writer, "✓ Batch started: %s\n", workflowID)
			fmt.Fprintf(c.App.Writer, "  Signatures: %d\n", len(temporal.UniqueSignatures(signatures)))
			fmt.Fprintf(c.App.Writer, "  Status:     ptoken batch status %s\n", workflowID)
			return nil
		},
	}
}

func batchStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status and result of a batch analysis",
		ArgsUsage: "WORKFLOW_ID",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Poll until the batch is no longer running",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Polling interval with --wait",
				Value: 2 * time.Second,
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("workflow ID is required")
			}
			workflowID := c.Args().Get(0)

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			status, err := tc.GetBatchResult(ctx, workflowID)
			for err == nil && c.Bool("wait") && status.Status == temporal.BatchRunning {
				time.Sleep(c.Duration("poll-interval"))
				status, err = tc.GetBatchResult(ctx, workflowID)
			}
			if err != nil {
				return err
			}

			return writeOutput(c, status, func(w io.Writer) { printBatchStatus(w, status) })
		},
	}
}

func printBatchStatus(w io.Writer, s *temporal.BatchStatus) {
	fmt.Fprintf(w, "Batch:   %s\n", s.WorkflowID)
	fmt.Fprintf(w, "Status:  %s\n", s.Status)
	if s.Result == nil {
		return
	}

	r := s.Result
	fmt.Fprintf(w, "Network: %s\n", r.Network)
	fmt.Fprintf(w, "Succeeded: %d  Failed: %d\n", r.Succeeded, r.Failed)
	fmt.Fprintf(w, "Legacy CU: %d  P-Token CU: %d\n", r.TotalLegacyCU, r.TotalOptimizedCU)
	fmt.Fprintf(w, "Total savings: %s SOL\n\n", r.TotalAbsoluteSavingsSOL.String())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNATURE\tSTATUS\tINSTRUCTION\tSAVINGS (SOL)\tERROR")
	for _, o := range r.Outcomes {
		instruction, savings := "-", "-"
		if o.Result != nil {
			instruction = o.Result.InstructionType
			savings = o.Result.AbsoluteSavingsSOL.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Signature, o.Status, instruction, savings, o.Error)
	}
	tw.Flush()
}

// readSignatures reads one signature per line, skipping blanks and # comments.
func readSignatures(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open signature file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var signatures []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		signatures = append(signatures, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read signatures: %w", err)
	}
	return signatures, nil
}
