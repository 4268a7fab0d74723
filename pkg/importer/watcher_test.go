package importer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherImportsChangedFiles(t *testing.T) {
	store := newStore(t)
	imp := New(store, nil)

	var imports int32
	imp.AfterImport(func(ctx context.Context, nid, version string) error {
		atomic.AddInt32(&imports, 1)
		return nil
	})

	dir := t.TempDir()
	w, err := NewWatcher(imp, dir, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// several quick writes collapse into one import
	path := filepath.Join(dir, "domains.yaml")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(domainsYAML), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	require.Eventually(t, func() bool {
		_, err := store.GetEntry(context.Background(), "urn:domains:payments", "1")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&imports))

	// files in directories created after start are picked up too
	sub := filepath.Join(dir, "regions")
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "regions.yml"), []byte(`nid: regions
version: "1"
title: Regions
entries:
  - urn: urn:regions:eu
    url: taxonomy://eu
    title: Europe
`), 0644))

	require.Eventually(t, func() bool {
		_, err := store.GetEntry(context.Background(), "urn:regions:eu", "1")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(New(newStore(t), nil), filepath.Join(t.TempDir(), "absent"), time.Second)
	assert.Error(t, err)
}
