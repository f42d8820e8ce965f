package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesRapidWritesIntoOneCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.frag")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var mu sync.Mutex
	var calls []map[string]bool
	received := make(chan struct{}, 8)

	w, err := New(nil, func(changed map[string]bool) {
		mu.Lock()
		calls = append(calls, changed)
		mu.Unlock()
		received <- struct{}{}
	})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.AddDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced callback")
	}

	time.Sleep(DebounceWindow + 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1, "rapid writes within the debounce window must collapse into one callback")
	require.True(t, calls[0][path])
}

func TestWatcherReportsMultipleChangedPaths(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.frag")
	pathB := filepath.Join(dir, "b.frag")
	require.NoError(t, os.WriteFile(pathA, []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("v1"), 0o644))

	received := make(chan map[string]bool, 4)
	w, err := New(nil, func(changed map[string]bool) { received <- changed })
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.AddDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(pathA, []byte("v2"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("v2"), 0o644))

	select {
	case changed := <-received:
		require.True(t, changed[pathA])
		require.True(t, changed[pathB])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced callback")
	}
}
