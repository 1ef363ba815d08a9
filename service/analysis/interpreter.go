package analysis

import "github.com/brojonat/ptoken/service/costs"

// programStack tracks nested program invocations during one log scan.
type programStack []string

func (s *programStack) push(program string) {
	*s = append(*s, program)
}

func (s programStack) top() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[len(s)-1], true
}

// popIf pops only when program is the innermost frame. A mismatched or empty
// stack is left alone so truncated logs cannot corrupt frame tracking.
func (s *programStack) popIf(program string) bool {
	if top, ok := s.top(); !ok || top != program {
		return false
	}
	*s = (*s)[:len(*s)-1]
	return true
}

// Interpret scans logs once and returns every instruction log line emitted
// while target was the innermost executing program and whose name is
// attributable in table. Occurrences keep log order and are not deduplicated.
func Interpret(logs []string, target string, table costs.Table) []Occurrence {
	var occurrences []Occurrence
	var stack programStack

	for i, raw := range logs {
		line := ClassifyLine(raw)
		switch line.Kind {
		case LineInvoke:
			stack.push(line.Program)
		case LineInstruction:
			if top, ok := stack.top(); ok && top == target && table.Attributable(line.Instruction) {
				occurrences = append(occurrences, Occurrence{Instruction: line.Instruction, Ordinal: i})
			}
		case LineSuccess, LineFailed:
			stack.popIf(line.Program)
		}
	}

	return occurrences
}
