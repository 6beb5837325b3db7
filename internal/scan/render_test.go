package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHunksNoChangesProducesNoHunks(t *testing.T) {
	d := RenderHunks([]byte("a\nb\nc\n"), []byte("a\nb\nc\n"), 3)
	assert.Len(t, d.Hunks, 0)
	assert.Equal(t, 0, d.Additions)
	assert.Equal(t, 0, d.Deletions)
}

func TestRenderHunksSingleLineChange(t *testing.T) {
	d := RenderHunks([]byte("a\nb\nc\n"), []byte("a\nX\nc\n"), 1)
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, 1, d.Deletions)
	assert.Equal(t, 1, d.Additions)

	h := d.Hunks[0]
	assert.Equal(t, "a", h.Lines[0].Content)
	assert.Equal(t, Context, h.Lines[0].Type)
}

func TestRenderHunksMergesCloseChanges(t *testing.T) {
	old := []byte("1\n2\n3\n4\n5\n6\n7\n")
	new := []byte("1\nX\n3\n4\nY\n6\n7\n")

	d := RenderHunks(old, new, 2)
	assert.Len(t, d.Hunks, 1, "two changes 2 lines apart with context=2 should merge into one hunk")
}

func TestRenderHunksSplitsDistantChanges(t *testing.T) {
	old := []byte("1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n")
	new := []byte("1\nX\n3\n4\n5\n6\n7\n8\nY\n10\n")

	d := RenderHunks(old, new, 1)
	assert.Len(t, d.Hunks, 2, "changes far apart should stay in separate hunks")
}

func TestFormatRendersUnifiedDiffMarkers(t *testing.T) {
	d := RenderHunks([]byte("a\nb\n"), []byte("a\nc\n"), 1)
	out := d.Format()
	assert.Contains(t, out, "@@ ")
	assert.Contains(t, out, "-b")
	assert.Contains(t, out, "+c")
}
