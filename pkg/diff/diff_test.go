package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
)

func concept(id, name string) models.Concept {
	return models.Concept{
		ID: id, ConceptClass: models.ConceptClassIndicator, Datatype: models.DatatypeNumeric,
		Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
		Names: []models.Name{
			{Name: name, NameType: models.NameTypeFullySpecified, Locale: "en", LocalePreferred: true},
			{Name: id, NameType: models.NameTypeShort, Locale: "en"},
		},
	}
}

func TestDiffPartition_Buckets(t *testing.T) {
	old := snapshot.NewPartition()
	old.SetConcept(concept("SAME", "same"))
	old.SetConcept(concept("CHANGED", "before"))
	old.SetConcept(concept("GONE", "gone"))

	cur := snapshot.NewPartition()
	cur.SetConcept(concept("SAME", "same"))
	cur.SetConcept(concept("CHANGED", "after"))
	cur.SetConcept(concept("NEW", "new"))

	res := DiffPartition(old, cur)
	b := res[models.ResourceConcept]
	assert.Equal(t, []string{"/orgs/PEPFAR/sources/MER/concepts/NEW/"}, b.ToCreate)
	assert.Equal(t, []string{"/orgs/PEPFAR/sources/MER/concepts/CHANGED/"}, b.ToUpdate)
	assert.Equal(t, []string{"/orgs/PEPFAR/sources/MER/concepts/SAME/"}, b.Unchanged)
	assert.Equal(t, []string{"/orgs/PEPFAR/sources/MER/concepts/GONE/"}, b.Orphaned)

	// every new key is in exactly one bucket
	seen := map[string]int{}
	for _, ks := range [][]string{b.ToCreate, b.ToUpdate, b.Unchanged} {
		for _, k := range ks {
			seen[k]++
		}
	}
	for _, k := range cur.Keys(models.ResourceConcept) {
		assert.Equal(t, 1, seen[k], k)
	}
	assert.Len(t, seen, cur.Len(models.ResourceConcept))
}

func TestEqual_OrderInsensitiveAndEmpty(t *testing.T) {
	a := concept("X", "x")
	b := concept("X", "x")
	b.Names[0], b.Names[1] = b.Names[1], b.Names[0]
	b.Descriptions = []models.Description{}
	assert.True(t, Equal(a, b))

	b.Retired = true
	assert.False(t, Equal(a, b))
	assert.NotEmpty(t, Explain(a, b))

	ext := "n1"
	c := concept("X", "x")
	c.Names[0].ExternalID = &ext
	assert.False(t, Equal(a, c))
}

func TestDiff_NoChange(t *testing.T) {
	build := func() *snapshot.Snapshot {
		s := snapshot.New()
		p := s.Partition("MER")
		p.SetConcept(concept("TX_NEW", "New on ART"))
		p.AddReference(models.Reference{Owner: "PEPFAR", Collection: "COL1", ConceptURL: "/orgs/PEPFAR/sources/MER/concepts/TX_NEW/"})
		return s
	}
	res := Diff(build(), build())
	assert.True(t, res.Empty())
	assert.Equal(t, Counts{Unchanged: 2}, res.Summary())
}

func TestDiff_BatchOnOneSide(t *testing.T) {
	old := snapshot.New()
	old.Partition("OLD").SetConcept(concept("A", "a"))
	cur := snapshot.New()
	cur.Partition("NEW").SetConcept(concept("B", "b"))

	res := Diff(old, cur)
	assert.Equal(t, []string{"NEW", "OLD"}, res.BatchNames())
	assert.Len(t, res.Bucket("NEW", models.ResourceConcept).ToCreate, 1)
	assert.Len(t, res.Bucket("OLD", models.ResourceConcept).Orphaned, 1)
	assert.False(t, res.Empty())
	assert.Empty(t, res.Bucket("MISSING", models.ResourceConcept).ToCreate)

	res = Diff(nil, cur)
	require.Contains(t, res.Batches, "NEW")
	assert.Equal(t, Counts{Create: 1}, res.Summary())
}

func TestDiffPartition_InsertionOrderIndependent(t *testing.T) {
	ids := []string{"TX_NEW", "TX_CURR", "HTS_TST", "PMTCT_STAT", "VMMC_CIRC"}
	build := func(order []string) *snapshot.Partition {
		p := snapshot.NewPartition()
		for _, id := range order {
			p.SetConcept(concept(id, id))
		}
		return p
	}
	reversed := make([]string, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}
	old := snapshot.NewPartition()
	old.SetConcept(concept("TX_CURR", "before"))
	old.SetConcept(concept("HTS_TST", "HTS_TST"))
	old.SetConcept(concept("GONE", "gone"))

	a := DiffPartition(old, build(ids))
	b := DiffPartition(old, build(reversed))
	assert.Equal(t, a, b)
	assert.Len(t, a[models.ResourceConcept].ToCreate, 3)
	assert.Equal(t, []string{"/orgs/PEPFAR/sources/MER/concepts/TX_CURR/"}, a[models.ResourceConcept].ToUpdate)
}
