package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchNotifiesOnFileChange(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed, err := r.Watch(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "tracked.txt", "hello")

	select {
	case _, ok := <-changed:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a watch notification")
	}
}

func TestWatchClosesChannelWhenContextCanceled(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changed, err := r.Watch(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-changed:
		assert.False(t, ok, "channel must close once the watcher's context is canceled")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the watch channel to close")
	}
}
