package analysis

import "regexp"

// LineKind is the closed set of log line shapes the interpreter acts on.
type LineKind int

const (
	LineOther LineKind = iota
	LineInvoke
	LineInstruction
	LineSuccess
	LineFailed
)

func (k LineKind) String() string {
	switch k {
	case LineInvoke:
		return "invoke"
	case LineInstruction:
		return "instruction"
	case LineSuccess:
		return "success"
	case LineFailed:
		return "failed"
	default:
		return "other"
	}
}

// LogLine is a classified log line. Program is set for invoke/success/failed,
// Instruction for instruction lines.
type LogLine struct {
	Kind        LineKind
	Program     string
	Instruction string
}

var (
	invokePattern      = regexp.MustCompile(`^Program\s+([A-Za-z0-9]+)\s+invoke`)
	instructionPattern = regexp.MustCompile(`^Program log: Instruction:\s*(\w+)`)
	successPattern     = regexp.MustCompile(`^Program\s+([A-Za-z0-9]+)\s+success`)
	failedPattern      = regexp.MustCompile(`^Program\s+([A-Za-z0-9]+)\s+failed`)
)

// ClassifyLine maps a raw log line to its kind.
func ClassifyLine(line string) LogLine {
	if m := invokePattern.FindStringSubmatch(line); m != nil {
		return LogLine{Kind: LineInvoke, Program: m[1]}
	}
	if m := instructionPattern.FindStringSubmatch(line); m != nil {
		return LogLine{Kind: LineInstruction, Instruction: m[1]}
	}
	if m := successPattern.FindStringSubmatch(line); m != nil {
		return LogLine{Kind: LineSuccess, Program: m[1]}
	}
	if m := failedPattern.FindStringSubmatch(line); m != nil {
		return LogLine{Kind: LineFailed, Program: m[1]}
	}
	return LogLine{Kind: LineOther}
}
