package store

import (
	"path/filepath"
	"testing"

	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partition(id string) *snapshot.Partition {
	p := snapshot.NewPartition()
	p.SetConcept(models.Concept{
		ID: id, ConceptClass: models.ConceptClassIndicator, Datatype: models.DatatypeNumeric,
		Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
	})
	return p
}

func openTemp(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	s := openTemp(t)

	_, ok, err := s.Load("MER")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("MER", partition("TX_NEW")))
	got, ok, err := s.Load("MER")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Has(models.ResourceConcept, "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/"))
	assert.NotNil(t, got.Mappings)

	require.NoError(t, s.Delete("MER"))
	_, ok, err = s.Load("MER")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotStore_Snapshot(t *testing.T) {
	s := openTemp(t)
	snap := snapshot.New()
	snap.Set("MER", partition("TX_NEW"))
	snap.Set("HC", partition("HTS_TST"))
	require.NoError(t, s.SaveSnapshot(snap))

	names, err := s.Batches()
	require.NoError(t, err)
	assert.Equal(t, []string{"HC", "MER"}, names)

	got, err := s.LoadSnapshot()
	require.NoError(t, err)
	want, err := snap.Bytes()
	require.NoError(t, err)
	have, err := got.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(have))
}

func TestSnapshotStore_RunReport(t *testing.T) {
	s := openTemp(t)
	b, err := s.LastRunReport()
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, s.PutRunReport([]byte(`{"status":"complete"}`)))
	b, err = s.LastRunReport()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"complete"}`, string(b))

	// run reports never show up as batches
	names, err := s.Batches()
	require.NoError(t, err)
	assert.Empty(t, names)
}
