package cmd_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd"
)

const trainingCSV = `product_id,product_name,about_product,actual_price,Client A Catgories,Client B department,Client b Price Tier
t1,Wireless earbuds,with charging case,"₹1,299",Audio > Headphones > Wireless,Electronics,Mid
t2,Over ear wireless headphones,,"₹2,999",Audio > Headphones > Wireless,Electronics,Premium
t3,Wired earphones,with mic,₹399,Audio > Headphones > Wired,Electronics,Budget
t4,Wired gaming headphones,,₹899,Audio > Headphones > Wired,Electronics,Budget
t5,Ceramic coffee mug,,₹299,Home > Kitchen > Mugs,Home,Budget
t6,Stainless steel coffee mug,,₹499,Home > Kitchen > Mugs,Home,Mid
t7,Broken row,,N/A,Home > Kitchen > Mugs,Home,Mid
`

const productsCSV = `product_id,product_name,about_product,actual_price
s2,Bluetooth Wireless Earbuds,,"₹1,999"
m1,Large coffee mug,,₹350
x1,Mystery item,,N/A
`

type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yml")
	content := "logging:\n  level: error\n" +
		"artifacts:\n  location: " + filepath.Join(dir, "artifacts") + "\n" +
		"metrics:\n  textfile_path: " + filepath.Join(dir, "tagger.prom") + "\n"
	require.NoError(t, os.WriteFile(config, []byte(content), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.csv"), []byte(trainingCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.csv"), []byte(productsCSV), 0o600))
	return workspace{dir: dir, config: config}
}

func (w workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tagger version")
}

func TestTrainThenTag(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "--config", ws.config, "train", "--input", ws.path("train.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "invalid_price")
	assert.Contains(t, out, "client_a")
	assert.Contains(t, out, "client_b")

	out, err = execute(t, "--config", ws.config, "stages", "--taxonomy", "client_a")
	require.NoError(t, err)
	assert.Contains(t, out, "level_3")
	assert.NotContains(t, out, "department")

	out, err = execute(t, "--config", ws.config, "tag",
		"--input", ws.path("products.csv"), "--output", ws.path("tagged.csv"), "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Provenance")

	f, err := os.Open(ws.path("tagged.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3, "header plus two products; the N/A price row is dropped")
	assert.Equal(t, "product_id", records[0][0])

	earbuds := records[1]
	assert.Equal(t, "s2", earbuds[0])
	assert.Equal(t, "1999", earbuds[2])
	assert.Equal(t, "Audio > Headphones > Wireless", earbuds[3])
	assert.Equal(t, "rule", earbuds[6])

	mug := records[2]
	assert.Equal(t, "m1", mug[0])
	assert.Equal(t, "Home", mug[4])
	assert.Equal(t, "model", mug[6])

	_, err = os.Stat(ws.path("tagger.prom"))
	require.NoError(t, err)
}

func TestTag_Untrained(t *testing.T) {
	ws := newWorkspace(t)

	_, err := execute(t, "--config", ws.config, "tag",
		"--input", ws.path("products.csv"), "--output", ws.path("tagged.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run train first")
}

func TestStages_Untrained(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "--config", ws.config, "stages")
	require.NoError(t, err)
	assert.Contains(t, out, "client_a: not trained")
	assert.Contains(t, out, "client_b: not trained")

	_, err = execute(t, "--config", ws.config, "stages", "--taxonomy", "client_c")
	require.Error(t, err)
}

func TestRulesTest(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "--config", ws.config, "rules", "test", "--text", "Bluetooth Wireless Earbuds")
	require.NoError(t, err)
	assert.Contains(t, out, "wireless-audio")
	assert.Contains(t, out, "Audio > Headphones > Wireless")
	assert.Contains(t, out, "no rule matched")

	out, err = execute(t, "--config", ws.config, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "embedded")
	assert.Contains(t, out, "smartwatches")
}

func TestRules_UnknownTaxonomy(t *testing.T) {
	testCases := []struct {
		name     string
		taxonomy string
		wantErr  bool
	}{
		{name: "configured", taxonomy: "client_a"},
		{name: "display name", taxonomy: "clientA", wantErr: true},
		{name: "unconfigured", taxonomy: "client_c", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ws := newWorkspace(t)
			rulesFile := ws.path("rules.yml")
			rulesYAML := "rules:\n  - name: earbuds\n    taxonomy: " + tc.taxonomy +
				"\n    category: Audio > Headphones > Wireless\n    all_of: [[earbud]]\n"
			require.NoError(t, os.WriteFile(rulesFile, []byte(rulesYAML), 0o600))
			config := ws.path("rules-config.yml")
			content := "logging:\n  level: error\n" +
				"artifacts:\n  location: " + ws.path("artifacts") + "\n" +
				"rules:\n  source: file\n  path: " + rulesFile + "\n"
			require.NoError(t, os.WriteFile(config, []byte(content), 0o600))

			out, err := execute(t, "--config", config, "rules", "test", "--text", "Bluetooth Wireless Earbuds")
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown taxonomy")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "earbuds")
		})
	}
}

func TestRulesImport_RequiresDatabase(t *testing.T) {
	ws := newWorkspace(t)

	_, err := execute(t, "--config", ws.config, "rules", "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.source must be database")
}

func TestDatabaseBackend(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "config.yml")
	content := "logging:\n  level: error\n" +
		"artifacts:\n  backend: database\n" +
		"database:\n  driver: sqlite3\n  path: " + filepath.Join(dir, "tagger.db") + "\n" +
		"rules:\n  source: database\n"
	require.NoError(t, os.WriteFile(config, []byte(content), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.csv"), []byte(trainingCSV), 0o600))

	out, err := execute(t, "--config", config, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = execute(t, "--config", config, "rules", "import")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 6 rules")

	_, err = execute(t, "--config", config, "rules", "add",
		"--name", "kettles", "--taxonomy", "client_b", "--category", "Home", "--all-of", "kettle,teapot")
	require.NoError(t, err)

	_, err = execute(t, "--config", config, "rules", "disable", "wireless-audio")
	require.NoError(t, err)

	out, err = execute(t, "--config", config, "rules", "test", "Ceramic teapot")
	require.NoError(t, err)
	assert.Contains(t, out, "kettles")

	out, err = execute(t, "--config", config, "rules", "test", "Bluetooth Wireless Earbuds")
	require.NoError(t, err)
	assert.NotContains(t, out, "wireless-audio")

	_, err = execute(t, "--config", config, "train", "--input", filepath.Join(dir, "train.csv"))
	require.NoError(t, err)

	out, err = execute(t, "--config", config, "stages")
	require.NoError(t, err)
	assert.Contains(t, out, "price_tier")
}
