package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datimsync/pkg/imap"
	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
)

func noEnv(string) string { return "" }

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(BuildInfo{Version: "test", Commit: "none", BuildDate: "unknown"}, noEnv)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestConfigInit_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datimsync.yaml")
	outStr, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, outStr, "wrote "+path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "batches:")

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datimsync.yaml")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "config", "validate")
	require.Error(t, err, "online defaults need a DHIS2 url")

	outStr, err := execute(t, "--config", path, "--offline", "--data-check-only", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, outStr, "configuration OK")
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datimsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ocl:\n  token: s3cret\n"), 0o600))

	outStr, err := execute(t, "--config", path, "config", "show", "--yaml")
	require.NoError(t, err)
	assert.NotContains(t, outStr, "s3cret")
	assert.Contains(t, outStr, "***")
}

func TestConfig_MissingExplicitFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config", "show")
	require.Error(t, err)
}

func writePartition(t *testing.T, path string, ids ...string) {
	t.Helper()
	p := snapshot.NewPartition()
	for _, id := range ids {
		p.AddConcept(models.Concept{
			ID: id, Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
			ConceptClass: models.ConceptClassIndicator, Datatype: models.DatatypeNumeric,
		})
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestDiff_Partitions(t *testing.T) {
	dir := t.TempDir()
	oldPath, newPath := filepath.Join(dir, "old.json"), filepath.Join(dir, "new.json")
	writePartition(t, oldPath, "TX_CURR")
	writePartition(t, newPath, "TX_CURR", "TX_NEW")

	outStr, err := execute(t, "diff", "--batch", "MER", oldPath, newPath)
	require.NoError(t, err)
	assert.Contains(t, outStr, "MER\n")
	assert.Contains(t, outStr, "total: 1 to create, 0 to update")

	outStr, err = execute(t, "diff", "--batch", "MER", oldPath, oldPath)
	require.NoError(t, err)
	assert.Contains(t, outStr, "no changes")
}

func TestDiff_SnapshotsAsJSON(t *testing.T) {
	dir := t.TempDir()
	s := snapshot.New()
	s.Partition("MER").AddConcept(models.Concept{
		ID: "TX_NEW", Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
		ConceptClass: models.ConceptClassIndicator,
	})
	newPath := filepath.Join(dir, "new.json")
	require.NoError(t, snapshot.SaveFile(newPath, s))
	oldPath := filepath.Join(dir, "old.json")
	require.NoError(t, snapshot.SaveFile(oldPath, snapshot.New()))

	outStr, err := execute(t, "diff", "--json", oldPath, newPath)
	require.NoError(t, err)
	var res struct {
		Batches map[string]map[string]struct {
			ToCreate []string `json:"to_create"`
		} `json:"batches"`
	}
	require.NoError(t, json.Unmarshal([]byte(outStr), &res))
	assert.Len(t, res.Batches["MER"]["Concept"].ToCreate, 1)
}

func TestDiff_UnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := execute(t, "diff", path, path)
	require.Error(t, err)
}

func imapCSV(t *testing.T, fields []string, rows ...[]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(fields, ",") + "\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ",") + "\n")
	}
	path := filepath.Join(t.TempDir(), "imap.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func fullRow(ind, disag string) []string {
	return []string{"HIV", ind, disag, "15+", "ADD", "MOH1", "New", "D1", "Adults"}
}

func TestImapValidate(t *testing.T) {
	path := imapCSV(t, imap.FieldNames, fullRow("TX_NEW", "Age_15+"))
	outStr, err := execute(t, "imap", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, outStr, "1 rows OK")

	short := imapCSV(t, imap.FieldNames[:8], fullRow("TX_NEW", "Age_15+")[:8])
	_, err = execute(t, "imap", "validate", short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOH_Disag_Name")
}

func TestImapShow_JSON(t *testing.T) {
	path := imapCSV(t, imap.FieldNames, fullRow("TX_NEW", "Age_15+"))
	outStr, err := execute(t, "imap", "show", "--format", "json", path)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(outStr), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "TX_NEW", rows[0]["DATIM_Indicator_ID"])
}

func TestImapDiff(t *testing.T) {
	a := imapCSV(t, imap.FieldNames, fullRow("TX_NEW", "Age_15+"))
	b := imapCSV(t, imap.FieldNames, fullRow("TX_NEW", "Age_15+"), fullRow("TX_CURR", "Age_15+"))
	outStr, err := execute(t, "imap", "diff", a, b)
	require.NoError(t, err)
	assert.Contains(t, outStr, "added 1, removed 0")
	assert.Contains(t, outStr, "+ TX_CURR Age_15+")
}

func saveBatch(t *testing.T, path, batch string, ids ...string) {
	t.Helper()
	p := snapshot.NewPartition()
	for _, id := range ids {
		p.AddConcept(models.Concept{
			ID: id, Owner: "PEPFAR", OwnerType: models.OwnerTypeOrganization, Source: "MER",
			ConceptClass: models.ConceptClassIndicator, Datatype: models.DatatypeNumeric,
		})
	}
	s := snapshot.New()
	s.Set(batch, p)
	require.NoError(t, snapshot.SaveFile(path, s))
}

func TestDiff_BatchFromRunFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "MER-ocl-cleaned.json")
	newPath := filepath.Join(dir, "MER-dhis2-converted.json")
	saveBatch(t, oldPath, "MER")
	saveBatch(t, newPath, "MER", "TX_NEW", "TX_CURR")

	outStr, err := execute(t, "diff", "--batch", "MER", oldPath, newPath)
	require.NoError(t, err)
	assert.Contains(t, outStr, "total: 2 to create, 0 to update")
	assert.NotContains(t, outStr, "no changes")

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, snapshot.SaveFile(empty, snapshot.New()))
	outStr, err = execute(t, "diff", "--batch", "MER", empty, newPath)
	require.NoError(t, err)
	assert.Contains(t, outStr, "total: 2 to create")

	_, err = execute(t, "diff", "--batch", "OTHER", newPath, newPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no batch "OTHER"`)
}
