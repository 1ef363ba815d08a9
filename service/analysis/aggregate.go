package analysis

import "github.com/brojonat/ptoken/service/costs"

// Totals is the CU cost of a set of occurrences under both implementations.
type Totals struct {
	LegacyCU    uint64
	OptimizedCU uint64
	DisplayName string // most frequent instruction, first seen wins ties
	Breakdown   []InstructionCost
}

// Aggregate sums table costs over occurrences. The boolean is false when
// there is nothing to attribute, so callers can tell "no attribution" apart
// from a transaction whose instructions genuinely cost zero.
func Aggregate(occurrences []Occurrence, table costs.Table) (*Totals, bool) {
	if len(occurrences) == 0 {
		return nil, false
	}

	totals := &Totals{
		Breakdown: make([]InstructionCost, 0, len(occurrences)),
	}
	counts := make(map[string]int)
	var order []string

	for _, occ := range occurrences {
		entry, _ := table.Lookup(occ.Instruction)
		totals.LegacyCU += entry.LegacyCU
		totals.OptimizedCU += entry.OptimizedCU
		totals.Breakdown = append(totals.Breakdown, InstructionCost{
			Name:        occ.Instruction,
			LegacyCU:    entry.LegacyCU,
			OptimizedCU: entry.OptimizedCU,
		})

		if counts[occ.Instruction] == 0 {
			order = append(order, occ.Instruction)
		}
		counts[occ.Instruction]++
	}

	best := 0
	for _, name := range order {
		if counts[name] > best {
			best = counts[name]
			totals.DisplayName = name
		}
	}

	return totals, true
}
