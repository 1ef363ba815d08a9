package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/costs"
	natspkg "github.com/brojonat/ptoken/service/nats"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

const rule = "─────────────────────────────────────────────────────"

// writeOutput prints v as indented JSON when --json is set, as the output
// of --jq when given, and with text otherwise.
func writeOutput(c *cli.Context, v interface{}, text func(io.Writer)) error {
	w := c.App.Writer
	if filter := c.String("jq"); filter != "" {
		return writeJQ(w, filter, v)
	}
	if c.Bool("json") {
		return outputJSON(w, v)
	}
	text(w)
	return nil
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, r *analysis.Result) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Signature:           %s\n", r.Signature)
	fmt.Fprintf(w, "Instruction:         %s\n", r.InstructionType)
	if r.Generic {
		fmt.Fprintln(w, "                     (no instruction logs; generic estimate)")
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Compute units:       %d\n", r.TotalCU)
	fmt.Fprintf(w, "Priority fee:        %d micro-lamports/CU\n", r.PriorityFeePerCU)
	fmt.Fprintf(w, "Priority fee paid:   %s SOL\n", r.TotalPriorityFeeSOL.String())
	fmt.Fprintf(w, "Legacy CU:           %d\n", r.LegacyCU)
	fmt.Fprintf(w, "P-Token CU:          %d\n", r.OptimizedCU)
	fmt.Fprintf(w, "P-Token fee:         %s SOL\n", r.OptimizedPriorityFeeSOL.String())
	fmt.Fprintf(w, "Savings:             %s SOL (%s%%)\n", r.AbsoluteSavingsSOL.String(), r.PercentageSavings.StringFixed(2))

	if len(r.Breakdown) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INSTRUCTION\tLEGACY CU\tP-TOKEN CU")
		for _, b := range r.Breakdown {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", b.Name, b.LegacyCU, b.OptimizedCU)
		}
		tw.Flush()
	}
}

func printProjection(w io.Writer, p *analysis.Projection) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%d x %s at %d micro-lamports/CU\n", p.Count, p.Instruction, p.PriorityFeePerCU)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Legacy CU:           %d\n", p.LegacyCU)
	fmt.Fprintf(w, "P-Token CU:          %d\n", p.OptimizedCU)
	fmt.Fprintf(w, "CU reduction:        %s%%\n", p.CUReductionPercent.StringFixed(2))
	fmt.Fprintf(w, "Legacy fee:          %s SOL\n", p.LegacyPriorityFeeSOL.String())
	fmt.Fprintf(w, "P-Token fee:         %s SOL\n", p.OptimizedPriorityFeeSOL.String())
	fmt.Fprintf(w, "Savings:             %s SOL\n", p.SavingsSOL.String())
}

func printCostTable(w io.Writer, table costs.Table) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTRUCTION\tLEGACY CU\tP-TOKEN CU\tREDUCTION")
	for _, name := range table.Names() {
		e := table[name]
		reduction := "-"
		if e.LegacyCU > 0 {
			legacy := decimal.NewFromInt(int64(e.LegacyCU))
			delta := legacy.Sub(decimal.NewFromInt(int64(e.OptimizedCU)))
			reduction = delta.Mul(decimal.NewFromInt(100)).Div(legacy).StringFixed(1) + "%"
		}
		if !e.Supported {
			reduction = "unsupported"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, e.LegacyCU, e.OptimizedCU, reduction)
	}
	tw.Flush()
}

func printEvent(w io.Writer, n int, e *natspkg.AnalysisEvent) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Analysis #%d\n", n)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Signature:    %s\n", e.Signature)
	fmt.Fprintf(w, "Network:      %s\n", e.Network)
	fmt.Fprintf(w, "Instruction:  %s\n", e.DisplayInstruction)
	fmt.Fprintf(w, "CU consumed:  %d\n", e.CUConsumed)
	fmt.Fprintf(w, "P-Token CU:   %d\n", e.OptimizedCU)
	fmt.Fprintf(w, "Savings:      %s SOL (%s%%)\n", e.AbsoluteSavingsSOL.String(), e.PercentageSavings.StringFixed(2))
	fmt.Fprintf(w, "Analyzed:     %s\n\n", e.AnalyzedAt.Format("2006-01-02T15:04:05Z07:00"))
}
