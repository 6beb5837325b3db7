package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobHashTextMatchesGitConvention(t *testing.T) {
	// printf 'hello world' | git hash-object --stdin (content here has no
	// trailing newline, matching what the git CLI hashes for a file
	// containing exactly these bytes).
	got := BlobHashText([]byte("hello world"))
	require.Len(t, got, 40)
	assert.Equal(t, "95d09f2b10159347eece71399a7e2e907ea3df4f", got)
}

func TestBlobHashTextEmpty(t *testing.T) {
	got := BlobHashText(nil)
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", got)
	assert.Equal(t, EmptyBlobHash, got)
}

func TestBlobHashBinaryIsRawSHA1(t *testing.T) {
	got := BlobHashBinary([]byte{0x00, 0x01, 0x02})
	assert.Len(t, got, 40)
	assert.NotEqual(t, BlobHashText([]byte{0x00, 0x01, 0x02}), got)
}

func TestCommitHashDeterministic(t *testing.T) {
	in := CommitInput{
		Author:    "jane",
		Timestamp: "2026-01-01T00:00:00Z",
		Message:   "init",
	}
	a := CommitHash(in)
	b := CommitHash(in)
	assert.Equal(t, a, b)
	assert.True(t, IsHash(a))
}

func TestCommitHashChangesWithParentAndOps(t *testing.T) {
	base := CommitInput{Author: "jane", Timestamp: "t", Message: "m"}
	withParent := base
	withParent.Parent = "deadbeef"
	withOps := withParent
	withOps.StagedOpsText = "write a.txt abc\n content"

	h0 := CommitHash(base)
	h1 := CommitHash(withParent)
	h2 := CommitHash(withOps)

	assert.NotEqual(t, h0, h1)
	assert.NotEqual(t, h1, h2)
}

func TestCommitHashEmptyMessageStillPresent(t *testing.T) {
	withMsg := CommitHash(CommitInput{Author: "a", Timestamp: "t", Message: "m"})
	withoutMsg := CommitHash(CommitInput{Author: "a", Timestamp: "t", Message: ""})
	assert.NotEqual(t, withMsg, withoutMsg)
}

func TestIsHash(t *testing.T) {
	assert.True(t, IsHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"))
	assert.False(t, IsHash("not-a-hash"))
	assert.False(t, IsHash("E69DE29BB2D1D6434B8B29AE775AD8C2E48C5391"))
}
