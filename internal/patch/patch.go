// Package patch implements the line-independent textual patch codec:
// deriving a position-indexed edit script between two strings, serializing
// it to the history file's record body grammar, parsing it back, and
// applying it.
package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// OpKind distinguishes the two patch operation variants.
type OpKind int

const (
	Delete OpKind = iota
	Insert
)

// Op is one position-indexed edit against the pre-patch character stream.
type Op struct {
	Kind OpKind
	Pos  int    // absolute offset into the original string
	Len  int    // Delete only: number of characters removed
	Text string // Insert only: text inserted at Pos
}

// Diff computes the character-level edit script transforming old into new,
// using an LCS walk over runes. The emitted cursor tracks offsets as if
// edits applied left-to-right to the original string: it advances by
// len(text) on equal runs and insertions, but not on deletions, because
// later operations' positions are still expressed in old-string
// coordinates (offset by insertions already accounted for on the new
// side).
func Diff(old, new string) []Op {
	oldRunes := []rune(old)
	newRunes := []rune(new)

	lcs := lcsMatrix(oldRunes, newRunes)

	type step struct {
		kind byte // 'e' equal, 'd' delete, 'i' insert
		old  rune
		new  rune
	}
	var steps []step

	i, j := len(oldRunes), len(newRunes)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldRunes[i-1] == newRunes[j-1]:
			steps = append(steps, step{kind: 'e', old: oldRunes[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			steps = append(steps, step{kind: 'i', new: newRunes[j-1]})
			j--
		default:
			steps = append(steps, step{kind: 'd', old: oldRunes[i-1]})
			i--
		}
	}
	// steps were built back-to-front; reverse.
	for l, r := 0, len(steps)-1; l < r; l, r = l+1, r-1 {
		steps[l], steps[r] = steps[r], steps[l]
	}

	var ops []Op
	pos := 0
	var pendingDelete *Op
	var pendingInsert *Op

	flushDelete := func() {
		if pendingDelete != nil {
			ops = append(ops, *pendingDelete)
			pendingDelete = nil
		}
	}
	flushInsert := func() {
		if pendingInsert != nil {
			ops = append(ops, *pendingInsert)
			pendingInsert = nil
		}
	}

	for _, s := range steps {
		switch s.kind {
		case 'e':
			flushDelete()
			flushInsert()
			pos++
		case 'd':
			flushInsert()
			if pendingDelete == nil {
				pendingDelete = &Op{Kind: Delete, Pos: pos}
			}
			pendingDelete.Len++
		case 'i':
			flushDelete()
			if pendingInsert == nil {
				pendingInsert = &Op{Kind: Insert, Pos: pos}
			}
			pendingInsert.Text += string(s.new)
			pos++
		}
	}
	flushDelete()
	flushInsert()

	return ops
}

func lcsMatrix(a, b []rune) [][]int {
	m := make([][]int, len(a)+1)
	for i := range m {
		m[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
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

// Apply replays ops, in order, against old and returns the resulting text.
func Apply(old string, ops []Op) (string, error) {
	result := []rune(old)

	for idx, op := range ops {
		switch op.Kind {
		case Delete:
			if op.Pos < 0 || op.Pos+op.Len > len(result) {
				return "", fmt.Errorf("patch op %d: delete [%d,%d) out of bounds (len %d)", idx, op.Pos, op.Pos+op.Len, len(result))
			}
			result = append(result[:op.Pos], result[op.Pos+op.Len:]...)
		case Insert:
			if op.Pos < 0 || op.Pos > len(result) {
				return "", fmt.Errorf("patch op %d: insert at %d out of bounds (len %d)", idx, op.Pos, len(result))
			}
			ins := []rune(op.Text)
			merged := make([]rune, 0, len(result)+len(ins))
			merged = append(merged, result[:op.Pos]...)
			merged = append(merged, ins...)
			merged = append(merged, result[op.Pos:]...)
			result = merged
		default:
			return "", fmt.Errorf("patch op %d: unknown op kind %d", idx, op.Kind)
		}
	}

	return string(result), nil
}

// ChangedLength returns the sum of changed-character lengths across ops,
// the numerator of the use-patch heuristic in spec.md §4.P.
func ChangedLength(ops []Op) int {
	total := 0
	for _, op := range ops {
		switch op.Kind {
		case Delete:
			total += op.Len
		case Insert:
			total += len([]rune(op.Text))
		}
	}
	return total
}

// ShouldPatch implements the use-patch heuristic: emit a patch rather than
// a full write iff old is non-empty and the changed length is less than
// 50% of len(old).
func ShouldPatch(old string, ops []Op) bool {
	if old == "" {
		return false
	}
	oldLen := len([]rune(old))
	if oldLen == 0 {
		return false
	}
	return float64(ChangedLength(ops)) < 0.5*float64(oldLen)
}

// Serialize renders ops to the patch record body grammar: one line per op,
// "delete <pos> <len>" or "insert <pos> <text>" for single-line text, or
// "insert <pos>" followed by an indented multi-line body when text
// contains a newline.
func Serialize(ops []Op) string {
	var lines []string
	for _, op := range ops {
		switch op.Kind {
		case Delete:
			lines = append(lines, fmt.Sprintf("delete %d %d", op.Pos, op.Len))
		case Insert:
			if strings.Contains(op.Text, "\n") {
				lines = append(lines, fmt.Sprintf("insert %d", op.Pos))
				for _, l := range strings.Split(op.Text, "\n") {
					lines = append(lines, " "+l)
				}
			} else {
				lines = append(lines, fmt.Sprintf("insert %d %s", op.Pos, op.Text))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Deserialize parses a patch record body back into its ops, the inverse of
// Serialize.
func Deserialize(body string) ([]Op, error) {
	if body == "" {
		return nil, nil
	}
	lines := strings.Split(body, "\n")

	var ops []Op
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if line[0] == ' ' {
			return nil, fmt.Errorf("patch line %d: unexpected continuation with no preceding insert", i)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "delete":
			if len(fields) != 3 {
				return nil, fmt.Errorf("patch line %d: malformed delete op %q", i, line)
			}
			pos, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("patch line %d: bad pos: %w", i, err)
			}
			length, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("patch line %d: bad len: %w", i, err)
			}
			ops = append(ops, Op{Kind: Delete, Pos: pos, Len: length})
		case "insert":
			if len(fields) < 2 {
				return nil, fmt.Errorf("patch line %d: malformed insert op %q", i, line)
			}
			pos, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("patch line %d: bad pos: %w", i, err)
			}

			var text string
			if len(fields) > 2 {
				text = strings.TrimPrefix(line, fields[0]+" "+fields[1]+" ")
			} else {
				// Multi-line body form: consume subsequent indented lines.
				var bodyLines []string
				for i+1 < len(lines) && strings.HasPrefix(lines[i+1], " ") {
					bodyLines = append(bodyLines, lines[i+1][1:])
					i++
				}
				text = strings.Join(bodyLines, "\n")
			}
			ops = append(ops, Op{Kind: Insert, Pos: pos, Text: text})
		default:
			return nil, fmt.Errorf("patch line %d: unknown patch op %q", i, fields[0])
		}
	}

	return ops, nil
}
