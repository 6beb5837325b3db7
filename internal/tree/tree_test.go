package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sit/internal/patch"
	"sit/internal/sitlog"
)

func TestFoldBasicOps(t *testing.T) {
	records := []sitlog.Record{
		sitlog.NewRecord("mkdir", "src"),
		sitlog.NewRecord("write", "src/a.txt", "h1").WithBody("hello"),
		sitlog.NewRecord("touch", "src/empty.txt"),
		sitlog.NewRecord("binary", "logo.png", "h2", "3").WithBody("AAA="),
	}

	state, err := Fold(records, nil)
	require.NoError(t, err)

	assert.Equal(t, KindDirectory, state["src"].Kind)
	assert.Equal(t, "hello", state["src/a.txt"].Content)
	assert.Equal(t, "", state["src/empty.txt"].Content)
	assert.Equal(t, KindBinary, state["logo.png"].Kind)
	assert.Equal(t, int64(3), state["logo.png"].Size)
}

func TestFoldDeleteAndRename(t *testing.T) {
	records := []sitlog.Record{
		sitlog.NewRecord("write", "a.txt", "h1").WithBody("hi"),
		sitlog.NewRecord("rename", "a.txt", "b.txt"),
	}
	state, err := Fold(records, nil)
	require.NoError(t, err)
	_, exists := state["a.txt"]
	assert.False(t, exists)
	assert.Equal(t, "hi", state["b.txt"].Content)

	records2 := append(records, sitlog.NewRecord("delete", "b.txt"))
	state2, err := Fold(records2, nil)
	require.NoError(t, err)
	assert.Len(t, state2, 0)
}

func TestFoldRejectsDeleteOfAbsentPath(t *testing.T) {
	_, err := Fold([]sitlog.Record{sitlog.NewRecord("delete", "ghost.txt")}, nil)
	assert.Error(t, err)
}

func TestFoldRejectsRenameOfAbsentPath(t *testing.T) {
	_, err := Fold([]sitlog.Record{sitlog.NewRecord("rename", "ghost.txt", "b.txt")}, nil)
	assert.Error(t, err)
}

func TestFoldRejectsPatchOfMissingFile(t *testing.T) {
	_, err := Fold([]sitlog.Record{sitlog.NewRecord("patch", "ghost.txt", "h")}, nil)
	assert.Error(t, err)
}

func TestFoldRejectsUnknownCue(t *testing.T) {
	_, err := Fold([]sitlog.Record{sitlog.NewRecord("frobnicate", "x")}, nil)
	assert.Error(t, err)
}

func TestFoldPatchAppliesOverWrite(t *testing.T) {
	ops := patch.Diff("hello world", "hello there world")
	body := patch.Serialize(ops)

	records := []sitlog.Record{
		sitlog.NewRecord("write", "a.txt", "h1").WithBody("hello world"),
		sitlog.NewRecord("patch", "a.txt", "h2").WithBody(body),
	}
	state, err := Fold(records, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there world", state["a.txt"].Content)
	assert.Equal(t, "h2", state["a.txt"].Hash)
}

func TestFoldDeterminism(t *testing.T) {
	records := []sitlog.Record{
		sitlog.NewRecord("mkdir", "a"),
		sitlog.NewRecord("write", "a/x.txt", "h1").WithBody("one"),
		sitlog.NewRecord("write", "a/y.txt", "h2").WithBody("two"),
		sitlog.NewRecord("delete", "a/x.txt"),
	}

	s1, err1 := Fold(records, nil)
	s2, err2 := Fold(records, nil)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, s1, s2)
}

func TestCommittedTreeVsStagedTree(t *testing.T) {
	records := []sitlog.Record{
		sitlog.NewRecord("commit", "x").WithBody("author a\ntimestamp t\norder 1\nid aaaa"),
		sitlog.NewRecord("write", "a.txt", "h1").WithBody("committed"),
		sitlog.NewRecord("commit", "x").WithBody("author a\ntimestamp t\norder 2\nid bbbb\nparent aaaa"),
		sitlog.NewRecord("write", "b.txt", "h2").WithBody("staged"),
	}

	committed, err := CommittedTree(records)
	require.NoError(t, err)
	assert.Contains(t, committed, "a.txt")
	assert.NotContains(t, committed, "b.txt")

	staged, err := StagedTree(records)
	require.NoError(t, err)
	assert.Contains(t, staged, "a.txt")
	assert.Contains(t, staged, "b.txt")
}

func TestStashRecordsAreInert(t *testing.T) {
	records := []sitlog.Record{
		sitlog.NewRecord("stash", "1").WithBody("write a.txt h1\n content"),
	}
	state, err := Fold(records, nil)
	require.NoError(t, err)
	assert.Len(t, state, 0)
}

func TestStopAfterCommitID(t *testing.T) {
	records := []sitlog.Record{
		sitlog.NewRecord("commit", "x").WithBody("author a\ntimestamp t\norder 1\nid aaaa"),
		sitlog.NewRecord("write", "a.txt", "h1").WithBody("one"),
		sitlog.NewRecord("commit", "x").WithBody("author a\ntimestamp t\norder 2\nid bbbb\nparent aaaa"),
		sitlog.NewRecord("write", "b.txt", "h2").WithBody("two"),
		sitlog.NewRecord("commit", "x").WithBody("author a\ntimestamp t\norder 3\nid cccc\nparent bbbb"),
		sitlog.NewRecord("write", "c.txt", "h3").WithBody("three"),
	}

	state, err := Fold(records, StopAfterCommitID("bbbb"))
	require.NoError(t, err)
	assert.Contains(t, state, "a.txt")
	assert.NotContains(t, state, "b.txt")
	assert.NotContains(t, state, "c.txt")
}
