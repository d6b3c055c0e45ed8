package rules_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValidAndOrdered(t *testing.T) {
	rs := rules.Default()

	require.NoError(t, rs.Validate())
	a := rs.ForTaxonomy("client_a")
	require.Len(t, a, 3)
	assert.Equal(t, "smartwatches", a[0].Name)
	assert.Equal(t, "bluetooth AND (headphone OR earbud)", a[2].Describe())
}

func TestParse_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "rules: [\n"},
		{name: "missing taxonomy", yaml: "rules:\n  - name: x\n    category: A\n    all_of: [[a]]\n"},
		{name: "missing groups", yaml: "rules:\n  - name: x\n    taxonomy: client_a\n    category: A\n"},
		{name: "empty group", yaml: "rules:\n  - name: x\n    taxonomy: client_a\n    category: A\n    all_of: [[]]\n"},
		{name: "blank keyword", yaml: "rules:\n  - name: x\n    taxonomy: client_a\n    category: A\n    all_of: [[\" - \"]]\n"},
		{
			name: "duplicate name",
			yaml: "rules:\n  - {name: x, taxonomy: a, category: A, all_of: [[a]]}\n  - {name: x, taxonomy: a, category: B, all_of: [[b]]}\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rules.Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	content := "rules:\n  - name: kettles\n    taxonomy: client_b\n    category: Home\n    all_of: [[kettle]]\n    none_of: [toy]\n    enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rs, err := rules.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 1)
	assert.False(t, rs.Rules[0].IsEnabled())
	assert.Equal(t, []string{"toy"}, rs.Rules[0].NoneOf)

	_, err = rules.LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestRuleSet_CheckTaxonomies(t *testing.T) {
	known := []string{"client_a", "client_b"}
	testCases := []struct {
		name     string
		taxonomy string
		wantErr  bool
	}{
		{name: "client_a", taxonomy: "client_a"},
		{name: "client_b", taxonomy: "client_b"},
		{name: "display name", taxonomy: "clientA", wantErr: true},
		{name: "unconfigured", taxonomy: "client_c", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rs := rules.RuleSet{Rules: []rules.Rule{
				{Name: "x", Taxonomy: tc.taxonomy, Category: "A", AllOf: [][]string{{"a"}}},
			}}
			require.NoError(t, rs.Validate())

			err := rs.CheckTaxonomies(known)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.taxonomy)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.NoError(t, rules.Default().CheckTaxonomies(known))
}
