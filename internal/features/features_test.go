package features_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
	"github.com/stretchr/testify/assert"
)

func TestNewContract(t *testing.T) {
	c := features.NewContract([]string{"level_1", "level_2"})

	assert.Equal(t, features.Contract{"combined_text", "actual_price", "predicted_level_1", "predicted_level_2"}, c)
	assert.Equal(t, []string{"predicted_level_1", "predicted_level_2"}, c.Upstream())
	assert.Equal(t, []string{"predicted_level_2"}, c.Missing([]string{"combined_text", "actual_price", "predicted_level_1"}))
	assert.Empty(t, c.Missing(c))
}

func TestBatch_WithUpstreamDoesNotAlias(t *testing.T) {
	b := features.NewBatch([]domain.Product{
		{CombinedText: "usb cable", Price: 199},
		{CombinedText: "earbuds", Price: 1299},
	})

	withL1 := b.WithUpstream("level_1", []string{"Computing", "Audio"})
	withL2 := withL1.WithUpstream("level_2", []string{"Accessories", "Headphones"})

	assert.Equal(t, []string{"combined_text", "actual_price"}, b.Columns)
	assert.Len(t, withL1.Columns, 3)
	assert.Nil(t, b.Rows[0].Upstream)
	assert.Len(t, withL1.Rows[1].Upstream, 1)
	assert.Equal(t, "Headphones", withL2.Rows[1].Upstream["predicted_level_2"])
	assert.Equal(t, "Audio", withL2.Rows[1].Upstream["predicted_level_1"])
	assert.Equal(t, []string{"combined_text", "actual_price", "predicted_level_1", "predicted_level_2"}, withL2.Columns)
}

func TestTokenize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "stop words and punctuation", input: "Bluetooth Wireless Earbuds, with the Mic!", expected: []string{"bluetooth", "wireless", "earbuds", "mic"}},
		{name: "accents folded", input: "Café Crème Kettle", expected: []string{"cafe", "creme", "kettle"}},
		{name: "single characters dropped", input: "USB C to A cable 1m", expected: []string{"usb", "cable", "1m"}},
		{name: "empty", input: "", expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := features.Tokenize(tc.input)
			if len(tc.expected) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "boat rockerz 450 on ear", features.Normalize("boAt  Rockerz-450 (On-Ear)"))
}

func TestEncoder_PriceBinsAreStable(t *testing.T) {
	rows := []features.Row{{Price: 100}, {Price: 1000}, {Price: 10000}}
	enc := features.FitEncoder(features.NewContract(nil), rows, 8)

	assert.Greater(t, enc.PriceStd, 0.0)
	assert.Less(t, enc.PriceBin(100), enc.PriceBin(10000))
	assert.Equal(t, 0, enc.PriceBin(0))
	assert.Equal(t, 7, enc.PriceBin(1e12))
}

func TestEncoder_Encode(t *testing.T) {
	contract := features.NewContract([]string{"level_1"})
	row := features.Row{
		Text:     "wireless wireless earbuds",
		Price:    1299,
		Upstream: map[string]string{"predicted_level_1": "Audio", "predicted_level_9": "ignored"},
	}
	enc := features.FitEncoder(contract, []features.Row{row}, 4)

	terms := enc.Encode(row)
	names := make([]string, len(terms))
	for i, term := range terms {
		names[i] = term.Name
	}

	assert.Equal(t, []string{"actual_price=b2", "predicted_level_1=Audio", "t:earbuds", "t:wireless"}, names)
	assert.Greater(t, terms[3].Weight, terms[2].Weight)
}

func TestEncoder_ZeroVarianceUsesMiddleBin(t *testing.T) {
	enc := features.FitEncoder(features.NewContract(nil), []features.Row{{Price: 50}, {Price: 50}}, 8)
	assert.Equal(t, 4, enc.PriceBin(50))
	assert.Equal(t, 4, enc.PriceBin(5000))
}
