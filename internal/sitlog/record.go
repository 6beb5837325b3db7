// Package sitlog implements the history file's line-oriented, indentation-
// nested record grammar: parsing a file into an ordered sequence of
// records, serializing a record back to bytes, and appending a record to
// the file as an atomic positional write.
package sitlog

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Record is one top-level entry in the history file: a cue word, its
// positional fields, and an optional indented body.
type Record struct {
	Cue   string
	Atoms []string
	// Rest is the raw remainder of the cue line after the cue word,
	// exactly as written (not re-tokenized). Serialize writes it back
	// only when Atoms is empty.
	Rest string
	// Body preserves interior newlines verbatim, one leading space
	// stripped per depth level. Empty string means no body.
	Body string
	// HasBody distinguishes "no body" from "body is the empty string"
	// (a degenerate one-line-blank body still differs from absent).
	HasBody bool
}

// ParseRecords parses a full history-file buffer into its ordered top-
// level records. Trailing blank lines are tolerated.
func ParseRecords(data []byte) ([]Record, error) {
	lines := splitLines(data)

	var records []Record
	var cur *Record
	var bodyLines []string

	flush := func() {
		if cur == nil {
			return
		}
		if len(bodyLines) > 0 {
			cur.Body = strings.Join(bodyLines, "\n")
			cur.HasBody = true
		}
		records = append(records, *cur)
		cur = nil
		bodyLines = nil
	}

	for lineNo, line := range lines {
		if line == "" {
			flush()
			continue
		}
		if line[0] == ' ' {
			if cur == nil {
				return nil, fmt.Errorf("malformed record: indented line %d with no preceding record", lineNo+1)
			}
			bodyLines = append(bodyLines, line[1:])
			continue
		}

		flush()
		cue, rest, atoms := parseCueLine(line)
		cur = &Record{Cue: cue, Atoms: atoms, Rest: rest}
	}
	flush()

	return records, nil
}

func parseCueLine(line string) (cue, rest string, atoms []string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, "", nil
	}
	cue = line[:idx]
	rest = line[idx+1:]
	atoms = strings.Fields(rest)
	return cue, rest, atoms
}

func splitLines(data []byte) []string {
	text := string(data)
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Serialize renders a record back to its exact byte form, the inverse of
// ParseRecords for any record the model itself produced.
func (r Record) Serialize() []byte {
	var buf bytes.Buffer

	buf.WriteString(r.Cue)
	if len(r.Atoms) > 0 {
		buf.WriteByte(' ')
		buf.WriteString(strings.Join(r.Atoms, " "))
	} else if r.Rest != "" {
		buf.WriteByte(' ')
		buf.WriteString(r.Rest)
	}
	buf.WriteByte('\n')

	if r.HasBody {
		for _, line := range strings.Split(r.Body, "\n") {
			buf.WriteByte(' ')
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}

	return buf.Bytes()
}

// SerializeAll renders an ordered sequence of records, one after another,
// with no blank-line separators (none are required by the grammar).
func SerializeAll(records []Record) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.Write(r.Serialize())
	}
	return buf.Bytes()
}

// WithBody returns a copy of r with its body set to text.
func (r Record) WithBody(text string) Record {
	r.Body = text
	r.HasBody = true
	return r
}

// NewRecord builds a Record from a cue and positional atoms, with no body.
func NewRecord(cue string, atoms ...string) Record {
	return Record{Cue: cue, Atoms: atoms}
}

// ParseFile reads and parses an entire history file from disk.
func ParseFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRecords(data)
}

// Positioned pairs a Record with the byte offset, within the buffer it was
// parsed from, where that record's serialized bytes begin and end. The
// Repository uses this to truncate the file to "everything up to and
// including the last commit" on reset, and to populate the commit index.
type Positioned struct {
	Record      Record
	StartOffset int64
	EndOffset   int64
}

// ParseRecordsWithOffsets is ParseRecords plus the byte range each record
// occupied in data, computed by re-serializing each record in turn (which
// is exact for any record the model produced; see the round-trip
// contract).
func ParseRecordsWithOffsets(data []byte) ([]Positioned, error) {
	records, err := ParseRecords(data)
	if err != nil {
		return nil, err
	}

	out := make([]Positioned, len(records))
	var offset int64
	for i, r := range records {
		n := int64(len(r.Serialize()))
		out[i] = Positioned{Record: r, StartOffset: offset, EndOffset: offset + n}
		offset += n
	}
	return out, nil
}

// TruncateFile truncates the file at path to exactly size bytes, used by
// reset to drop staged records and by stash to drop the records it just
// folded into a stash body.
func TruncateFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return err
	}
	return f.Sync()
}

// AppendRecords appends the serialized form of records to the file at
// path as a single positional append, then fsyncs before returning, per
// the single-writer append discipline in spec.md §5.
func AppendRecords(path string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	data := SerializeAll(records)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
