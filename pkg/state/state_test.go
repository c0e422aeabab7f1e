package state

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"datimsync/pkg/importer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirs(t *testing.T) {
	p := PathsFor(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, EnsureDirs(p))
	for _, d := range p.all() {
		fi, err := os.Stat(d)
		require.NoError(t, err, d)
		assert.True(t, fi.IsDir())
	}
	// idempotent
	require.NoError(t, EnsureDirs(p))
}

func TestEnsureDirs_RejectsSymlink(t *testing.T) {
	root := t.TempDir()
	p := PathsFor(filepath.Join(root, "data"))
	require.NoError(t, os.MkdirAll(p.Data, 0o700))
	require.NoError(t, os.Symlink(root, p.Exports))
	assert.Error(t, EnsureDirs(p))
}

func TestSetup_SwitchesActiveLayout(t *testing.T) {
	a, err := Setup(filepath.Join(t.TempDir(), "a") + "/")
	require.NoError(t, err)
	assert.Equal(t, a, PathsVar)
	assert.Equal(t, "a", filepath.Base(a.Data))

	b, err := Setup(filepath.Join(t.TempDir(), "b"))
	require.NoError(t, err)
	assert.Equal(t, b, PathsVar)
}

func TestFailedItemWriter(t *testing.T) {
	dir := t.TempDir()
	fw := NewFailedItemWriter(dir)
	fw.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	st := &importer.Status{TaskID: "t-1", State: importer.StateComplete, Items: []importer.Item{
		{Key: "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/", Type: "Concept", Status: 201},
		{Key: "/orgs/PEPFAR/sources/MER/concepts/TX_CURR/", Type: "Concept", Status: 400, Message: "bad"},
	}}
	n, err := fw.Write("run-1", "MER", st)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, fw.Close())

	f, err := os.Open(filepath.Join(dir, "failed_items_2026-03-01.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var got FailedItem
	require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
	assert.Equal(t, "MER", got.Batch)
	assert.Equal(t, 400, got.Item.Status)
	assert.False(t, sc.Scan())
}
