package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/pathwaygraph/pkg/storage"
)

const testFixture = `
roots: [100]
instances:
  - dbId: 100
    class: Pathway
    displayName: Signaling
    attributes:
      hasEvent: [{ref: 200}, {ref: 200}]
  - dbId: 200
    class: Reaction
    displayName: Binding
    attributes:
      input: [{ref: 300}]
      output: [{ref: 300}, {ref: 301}]
  - dbId: 300
    class: SimpleEntity
    displayName: ATP
  - dbId: 301
    class: SimpleEntity
    displayName: ADP
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

// writeFixture stores content as a fixture and returns its path and a data
// directory next to it.
func writeFixture(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(content), 0644))
	return fixture, filepath.Join(dir, "graph.db")
}

func importFixture(t *testing.T) string {
	t.Helper()
	fixture, dataDir := writeFixture(t, testFixture)
	metricsFile := filepath.Join(filepath.Dir(fixture), "pathwaygraph.prom")

	out, err := execute(t, "import",
		"--fixture", fixture,
		"--data-dir", dataDir,
		"--metrics-textfile", metricsFile,
		"--log-level", "error",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 roots, 4 nodes, 4 relationships")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "pathwaygraph_roots_imported_total 1")
	return dataDir
}

func TestImportAndStats(t *testing.T) {
	dataDir := importFixture(t)

	out, err := execute(t, "stats", "--data-dir", dataDir, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Nodes:         4")
	assert.Contains(t, out, "Relationships: 4")
	assert.Contains(t, out, "hasEvent")
	assert.Contains(t, out, "constraint_pathway_dbid_unique")
	assert.Contains(t, out, "index_referenceentity_identifier")
}

func TestLookup(t *testing.T) {
	dataDir := importFixture(t)

	out, err := execute(t, "lookup", "--data-dir", dataDir, "--log-level", "error",
		"--label", "Pathway", "--property", "dbId", "--value", "100")
	require.NoError(t, err, out)

	var node storage.Node
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(out)).Decode(&node))
	assert.Equal(t, "Signaling", node.Properties["displayName"])
	assert.Contains(t, node.Labels, "Event")

	_, err = execute(t, "lookup", "--data-dir", dataDir, "--log-level", "error",
		"--label", "Pathway", "--property", "dbId", "--value", "999")
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	dataDir := importFixture(t)
	exportPath := filepath.Join(t.TempDir(), "export.json")

	out, err := execute(t, "export", "--data-dir", dataDir, "--log-level", "error", "--out", exportPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, exportPath)

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var export storage.Neo4jExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Len(t, export.Nodes, 4)
	assert.Len(t, export.Relationships, 4)
}

func TestImport_FailedRunMarkedIncomplete(t *testing.T) {
	fixture, dataDir := writeFixture(t, testFixture)

	_, err := execute(t, "import", "--fixture", fixture, "--data-dir", dataDir,
		"--max-depth", "1", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum import depth exceeded")

	out, err := execute(t, "stats", "--data-dir", dataDir, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "INCOMPLETE")
	assert.Contains(t, out, "maximum import depth exceeded")
	assert.NotContains(t, out, "finished")
}

func TestImport_NonFiniteValueSkipped(t *testing.T) {
	fixture, dataDir := writeFixture(t, `
roots: [100]
instances:
  - dbId: 100
    class: Pathway
    displayName: Signaling
    attributes:
      literatureReference: [{ref: 200}]
  - dbId: 200
    class: LiteratureReference
    displayName: A paper
    attributes:
      volume: [.nan]
      journal: [Cell]
`)
	out, err := execute(t, "import", "--fixture", fixture, "--data-dir", dataDir, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 roots, 2 nodes, 1 relationships")

	out, err = execute(t, "lookup", "--data-dir", dataDir, "--log-level", "error",
		"--label", "LiteratureReference", "--property", "dbId", "--value", "200")
	require.NoError(t, err, out)
	var node storage.Node
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(out)).Decode(&node))
	assert.Equal(t, "Cell", node.Properties["journal"])
	assert.NotContains(t, node.Properties, "volume")
}

func TestImport_InvalidConfig(t *testing.T) {
	_, err := execute(t, "import", "--driver", "mysql")
	assert.Error(t, err)
}

func TestInitAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pathwaygraph.yaml")
	out, err := execute(t, "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pathwaygraph v")
}

func TestParseLookupValue(t *testing.T) {
	assert.Equal(t, int64(42), parseLookupValue("42"))
	assert.Equal(t, "R-HSA-109581", parseLookupValue("R-HSA-109581"))
}
