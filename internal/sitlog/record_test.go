package sitlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripSimpleRecord(t *testing.T) {
	r := NewRecord("touch", "favicon.ico")
	data := r.Serialize()
	parsed, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "touch", parsed[0].Cue)
	assert.Equal(t, []string{"favicon.ico"}, parsed[0].Atoms)
	assert.False(t, parsed[0].HasBody)
}

func TestRoundTripRecordWithBody(t *testing.T) {
	r := NewRecord("write", "a.txt", "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391").
		WithBody("line one\nline two\n\nline four")
	data := r.Serialize()

	parsed, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "line one\nline two\n\nline four", parsed[0].Body)
}

func TestRoundTripMultipleRecords(t *testing.T) {
	records := []Record{
		NewRecord("mkdir", "src"),
		NewRecord("write", "src/a.txt", "deadbeef").WithBody("hello"),
		NewRecord("delete", "old.txt"),
	}
	data := SerializeAll(records)
	parsed, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	assert.Equal(t, "mkdir", parsed[0].Cue)
	assert.Equal(t, "write", parsed[1].Cue)
	assert.Equal(t, "hello", parsed[1].Body)
	assert.Equal(t, "delete", parsed[2].Cue)
}

func TestParseTrailingBlankLinesTolerated(t *testing.T) {
	data := []byte("touch a.txt\n\n\n")
	parsed, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
}

func TestParseRejectsOrphanBodyLine(t *testing.T) {
	data := []byte(" orphan body line\n")
	_, err := ParseRecords(data)
	assert.Error(t, err)
}

func TestParseBlankContentLineWithinBodyPreserved(t *testing.T) {
	// A literal blank line inside body text is represented on disk as a
	// single space (the body-line indent marker with empty remainder),
	// distinguishing it from a true blank separator line.
	r := NewRecord("write", "a.txt", "hash").WithBody("before\n\nafter")
	data := r.Serialize()
	assert.Contains(t, string(data), "before\n \n after\n")

	parsed, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "before\n\nafter", parsed[0].Body)
}

func TestAppendRecordsAndParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proj.sit")

	require.NoError(t, AppendRecords(path, []Record{NewRecord("touch", "a.txt")}))
	require.NoError(t, AppendRecords(path, []Record{NewRecord("touch", "b.txt")}))

	parsed, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "a.txt", parsed[0].Atoms[0])
	assert.Equal(t, "b.txt", parsed[1].Atoms[0])
}

func TestParseRecordsWithOffsetsCoversWholeBuffer(t *testing.T) {
	records := []Record{
		NewRecord("mkdir", "src"),
		NewRecord("write", "src/a.txt", "deadbeef").WithBody("hello\nworld"),
	}
	data := SerializeAll(records)

	positioned, err := ParseRecordsWithOffsets(data)
	require.NoError(t, err)
	require.Len(t, positioned, 2)
	assert.Equal(t, int64(0), positioned[0].StartOffset)
	assert.Equal(t, positioned[1].StartOffset, positioned[0].EndOffset)
	assert.Equal(t, int64(len(data)), positioned[len(positioned)-1].EndOffset)
}

func TestTruncateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proj.sit")
	require.NoError(t, AppendRecords(path, []Record{
		NewRecord("touch", "a.txt"),
		NewRecord("touch", "b.txt"),
	}))

	positioned, err := func() ([]Positioned, error) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return ParseRecordsWithOffsets(data)
	}()
	require.NoError(t, err)

	require.NoError(t, TruncateFile(path, positioned[0].EndOffset))

	parsed, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "a.txt", parsed[0].Atoms[0])
}
