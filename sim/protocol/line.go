package protocol

import "strings"

// LineKind tags an inbound line.
type LineKind int

const (
	// LineEmpty is a blank line. Skipped silently.
	LineEmpty LineKind = iota
	// LineDiagnostic is banner or debug text. Skipped, optionally logged.
	LineDiagnostic
	// LineRecord is a snapshot; its text starts with '{'.
	LineRecord
)

func (k LineKind) String() string {
	switch k {
	case LineEmpty:
		return "empty"
	case LineDiagnostic:
		return "diagnostic"
	case LineRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Line is a classified inbound line. Text is whitespace-trimmed.
type Line struct {
	Kind LineKind
	Text string
}

// Classify tags a raw line by its first non-space character. It never parses
// the record; see DecodeSnapshot.
func Classify(raw string) Line {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return Line{Kind: LineEmpty}
	case text[0] == '{':
		return Line{Kind: LineRecord, Text: text}
	default:
		return Line{Kind: LineDiagnostic, Text: text}
	}
}

// Decode classifies raw and, for record lines, decodes the snapshot. The
// snapshot is nil for empty and diagnostic lines.
func Decode(raw string) (Line, *Snapshot, error) {
	line := Classify(raw)
	if line.Kind != LineRecord {
		return line, nil, nil
	}
	snap, err := DecodeSnapshot(line.Text)
	if err != nil {
		return line, nil, err
	}
	return line, snap, nil
}
