package scan

import (
	"bytes"
	"fmt"
)

// LineType indicates whether a rendered line was added, removed, or is
// context, mirroring the teacher's line-diff engine.
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// HunkLine is one line of a rendered hunk.
type HunkLine struct {
	Type    LineType
	Content string
}

// Hunk is a contiguous section of changed (plus surrounding context)
// lines, in the style of a unified diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []HunkLine
}

// HunkDiff is the complete human-readable rendering of a text diff. It
// carries no hash or wire-format meaning — it exists only for the CLI's
// `diff` command (spec.md §1 calls content rendering purely
// presentational).
type HunkDiff struct {
	Hunks     []Hunk
	Additions int
	Deletions int
}

// RenderHunks computes a line-level unified diff between old and new,
// adapted from the teacher's LCS-based line-diff engine (operating at
// line rather than the patch codec's rune granularity, and used only for
// display).
func RenderHunks(old, new []byte, contextLines int) *HunkDiff {
	oldLines := splitLinesBytes(old)
	newLines := splitLinesBytes(new)

	lcs := lineLCSMatrix(oldLines, newLines)
	hunks := extractLineHunks(oldLines, newLines, lcs, contextLines)

	result := &HunkDiff{Hunks: hunks}
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case Addition:
				result.Additions++
			case Deletion:
				result.Deletions++
			}
		}
	}
	return result
}

func splitLinesBytes(content []byte) [][]byte {
	trimmed := bytes.TrimSuffix(content, []byte{'\n'})
	if len(trimmed) == 0 {
		return nil
	}
	return bytes.Split(trimmed, []byte{'\n'})
}

func lineLCSMatrix(oldLines, newLines [][]byte) [][]int {
	m := make([][]int, len(oldLines)+1)
	for i := range m {
		m[i] = make([]int, len(newLines)+1)
	}
	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				m[i][j] = m[i-1][j-1] + 1
			} else if m[i-1][j] >= m[i][j-1] {
				m[i][j] = m[i-1][j]
			} else {
				m[i][j] = m[i][j-1]
			}
		}
	}
	return m
}

// opLine is one step of the backward walk over the LCS matrix, before
// hunks are grouped and context added.
type opLine struct {
	typ      LineType
	content  []byte
	oldIndex int // 0-based index into oldLines; -1 for pure additions
	newIndex int // 0-based index into newLines; -1 for pure deletions
}

func extractLineHunks(oldLines, newLines [][]byte, lcs [][]int, contextLines int) []Hunk {
	var steps []opLine

	i, j := len(oldLines), len(newLines)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			steps = append(steps, opLine{typ: Context, content: oldLines[i-1], oldIndex: i - 1, newIndex: j - 1})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			steps = append(steps, opLine{typ: Addition, content: newLines[j-1], oldIndex: -1, newIndex: j - 1})
			j--
		default:
			steps = append(steps, opLine{typ: Deletion, content: oldLines[i-1], oldIndex: i - 1, newIndex: -1})
			i--
		}
	}
	for l, r := 0, len(steps)-1; l < r; l, r = l+1, r-1 {
		steps[l], steps[r] = steps[r], steps[l]
	}

	return groupHunks(steps, contextLines)
}

// groupHunks turns the flat op-line sequence into unified-diff hunks,
// merging changed regions that are within 2*contextLines of each other.
func groupHunks(steps []opLine, contextLines int) []Hunk {
	// Find indices of non-context runs.
	var changeRuns [][2]int // [start, end) into steps, inclusive of surrounding context to merge
	inRun := false
	runStart := 0
	for idx, s := range steps {
		if s.typ != Context {
			if !inRun {
				inRun = true
				runStart = idx
			}
		} else if inRun {
			changeRuns = append(changeRuns, [2]int{runStart, idx})
			inRun = false
		}
	}
	if inRun {
		changeRuns = append(changeRuns, [2]int{runStart, len(steps)})
	}
	if len(changeRuns) == 0 {
		return nil
	}

	// Merge runs whose context gap is small enough to share a hunk.
	var merged [][2]int
	for _, run := range changeRuns {
		if len(merged) > 0 {
			prev := merged[len(merged)-1]
			gap := run[0] - prev[1]
			if gap <= 2*contextLines {
				merged[len(merged)-1][1] = run[1]
				continue
			}
		}
		merged = append(merged, run)
	}

	var hunks []Hunk
	for _, run := range merged {
		start := run[0] - contextLines
		if start < 0 {
			start = 0
		}
		end := run[1] + contextLines
		if end > len(steps) {
			end = len(steps)
		}

		hunk := Hunk{}
		first := true
		for _, s := range steps[start:end] {
			if first {
				hunk.OldStart = s.oldIndex + 1
				hunk.NewStart = s.newIndex + 1
				first = false
			}
			var lt LineType
			switch s.typ {
			case Context:
				lt = Context
				hunk.OldLines++
				hunk.NewLines++
			case Addition:
				lt = Addition
				hunk.NewLines++
			case Deletion:
				lt = Deletion
				hunk.OldLines++
			}
			hunk.Lines = append(hunk.Lines, HunkLine{Type: lt, Content: string(s.content)})
		}
		hunks = append(hunks, hunk)
	}

	return hunks
}

// Format renders a HunkDiff as unified-diff text.
func (d *HunkDiff) Format() string {
	var buf bytes.Buffer
	for _, h := range d.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, l := range h.Lines {
			switch l.Type {
			case Addition:
				buf.WriteString("+")
			case Deletion:
				buf.WriteString("-")
			case Context:
				buf.WriteString(" ")
			}
			buf.WriteString(l.Content)
			buf.WriteString("\n")
		}
	}
	return buf.String()
}
