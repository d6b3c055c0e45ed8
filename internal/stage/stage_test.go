package stage_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/artifact"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func example(text string, price float64, label string) stage.Example {
	return stage.Example{Row: features.Row{Text: text, Price: price}, Label: label}
}

func audioVsComputing() []stage.Example {
	return []stage.Example{
		example("Bluetooth wireless earbuds with charging case", 1299, "Audio"),
		example("Over ear wireless headphones noise cancelling", 4999, "Audio"),
		example("Wired earphones with mic", 399, "Audio"),
		example("USB mouse optical wired", 499, "Computing"),
		example("Mechanical keyboard backlit USB", 2499, "Computing"),
	}
}

func textBatch(texts ...string) features.Batch {
	products := make([]domain.Product, len(texts))
	for i, t := range texts {
		products[i] = domain.Product{CombinedText: t, Price: 999}
	}
	return features.NewBatch(products)
}

func TestFilterSupport(t *testing.T) {
	examples := []stage.Example{
		example("a", 1, "Wireless"),
		example("b", 1, "Wireless"),
		example("c", 1, "Wired"),
		example("d", 1, "Wireless"),
	}

	kept, dropped, support := stage.FilterSupport(examples, 2)

	assert.Len(t, kept, 3)
	assert.Equal(t, []string{"Wired"}, dropped)
	assert.Equal(t, map[string]int{"Wireless": 3, "Wired": 1}, support)
	for _, ex := range kept {
		assert.Equal(t, "Wireless", ex.Label)
	}
}

func TestFit_ExcludesLowSupportClasses(t *testing.T) {
	examples := append(audioVsComputing(), example("Stainless steel water bottle", 299, "Kitchen"))

	s, err := stage.Fit(stage.Spec{Taxonomy: "client_a", Name: "level_1"}, examples, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"Audio", "Computing"}, s.Labels())
	assert.Equal(t, []string{"Kitchen"}, s.Metadata().Dropped)
	assert.Equal(t, 5, s.Metadata().Examples)

	predictions, err := s.Predict(textBatch("Stainless steel water bottle"))
	require.NoError(t, err)
	assert.NotEqual(t, "Kitchen", predictions[0])
}

func TestFit_InsufficientData(t *testing.T) {
	testCases := []struct {
		name     string
		examples []stage.Example
		classes  int
		dropped  []string
	}{
		{
			name:     "single class",
			examples: []stage.Example{example("a b", 1, "Wireless"), example("c d", 1, "Wireless"), example("e f", 1, "Wireless")},
			classes:  1,
		},
		{
			name:     "second class filtered",
			examples: []stage.Example{example("a b", 1, "Wireless"), example("c d", 1, "Wireless"), example("e f", 1, "Wired")},
			classes:  1,
			dropped:  []string{"Wired"},
		},
		{
			name:    "no examples",
			classes: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stage.Fit(stage.Spec{Taxonomy: "client_a", Name: "level_3"}, tc.examples, 2)

			var insufficient *domain.InsufficientDataError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, "level_3", insufficient.Stage)
			assert.Equal(t, tc.classes, insufficient.Classes)
			assert.Equal(t, tc.dropped, insufficient.Dropped)
		})
	}
}

func TestPredict_LearnsTextSignal(t *testing.T) {
	s, err := stage.Fit(stage.Spec{Taxonomy: "client_a", Name: "level_1", Options: stage.DefaultOptions()}, audioVsComputing(), 2)
	require.NoError(t, err)

	predictions, err := s.Predict(textBatch("wireless earbuds", "usb keyboard"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Audio", "Computing"}, predictions)
}

func TestPredict_IsDeterministic(t *testing.T) {
	s, err := stage.Fit(stage.Spec{Taxonomy: "client_a", Name: "level_1"}, audioVsComputing(), 2)
	require.NoError(t, err)

	batch := textBatch("wireless usb", "", "charging case keyboard", "unrelated words here")
	first, err := s.Predict(batch)
	require.NoError(t, err)
	for range 10 {
		again, predictErr := s.Predict(batch)
		require.NoError(t, predictErr)
		assert.Equal(t, first, again)
	}
}

func TestPredict_TiesResolveLexically(t *testing.T) {
	examples := []stage.Example{
		example("alpha", 10, "Zeta"),
		example("alpha", 10, "Zeta"),
		example("alpha", 10, "Beta"),
		example("alpha", 10, "Beta"),
	}
	s, err := stage.Fit(stage.Spec{Taxonomy: "client_b", Name: "department"}, examples, 2)
	require.NoError(t, err)

	predictions, err := s.Predict(textBatch("alpha"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta"}, predictions)
}

func TestPredict_UsesUpstreamFeature(t *testing.T) {
	spec := stage.Spec{Taxonomy: "client_a", Name: "level_2", Upstream: []string{"level_1"}}
	up := features.UpstreamFeature("level_1")
	row := func(upstream string) features.Row {
		return features.Row{Text: "generic item", Price: 100, Upstream: map[string]string{up: upstream}}
	}
	examples := []stage.Example{
		{Row: row("Audio"), Label: "Headphones"},
		{Row: row("Audio"), Label: "Headphones"},
		{Row: row("Computing"), Label: "Accessories"},
		{Row: row("Computing"), Label: "Accessories"},
	}
	s, err := stage.Fit(spec, examples, 2)
	require.NoError(t, err)
	assert.Equal(t, features.Contract{"combined_text", "actual_price", "predicted_level_1"}, s.Contract())

	batch := textBatch("generic item", "generic item").WithUpstream("level_1", []string{"Computing", "Audio"})
	predictions, err := s.Predict(batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Accessories", "Headphones"}, predictions)
}

func TestPredict_ContractMismatch(t *testing.T) {
	spec := stage.Spec{Taxonomy: "client_a", Name: "level_3", Upstream: []string{"level_1", "level_2"}}
	examples := []stage.Example{
		{Row: features.Row{Text: "a", Upstream: map[string]string{"predicted_level_1": "x", "predicted_level_2": "y"}}, Label: "A"},
		{Row: features.Row{Text: "a", Upstream: map[string]string{"predicted_level_1": "x", "predicted_level_2": "y"}}, Label: "A"},
		{Row: features.Row{Text: "b", Upstream: map[string]string{"predicted_level_1": "x", "predicted_level_2": "z"}}, Label: "B"},
		{Row: features.Row{Text: "b", Upstream: map[string]string{"predicted_level_1": "x", "predicted_level_2": "z"}}, Label: "B"},
	}
	s, err := stage.Fit(spec, examples, 2)
	require.NoError(t, err)

	_, err = s.Predict(textBatch("a").WithUpstream("level_1", []string{"x"}))

	var mismatch *domain.FeatureContractMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "level_3", mismatch.Stage)
	assert.Equal(t, []string{"predicted_level_2"}, mismatch.Missing)

	_, err = s.Predict(textBatch("a"))
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"predicted_level_1", "predicted_level_2"}, mismatch.Missing)
}

func TestPersistAndLoad_RoundTrip(t *testing.T) {
	store, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	s, err := stage.Fit(stage.Spec{Taxonomy: "client_a", Name: "level_1"}, audioVsComputing(), 2)
	require.NoError(t, err)
	assert.Zero(t, s.Version())

	version, err := s.Persist(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, 1, s.Version())

	loaded, err := stage.Load(ctx, store, s.Key(), artifact.Latest)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version())
	assert.Equal(t, s.Labels(), loaded.Labels())
	assert.Equal(t, s.Contract(), loaded.Contract())

	batch := textBatch("wireless earbuds", "usb keyboard", "anything else", "")
	want, err := s.Predict(batch)
	require.NoError(t, err)
	got, err := loaded.Predict(batch)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Errors(t *testing.T) {
	store, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := artifact.Key{Taxonomy: "client_b", Stage: "price_tier"}

	_, err = stage.Load(ctx, store, key, artifact.Latest)
	require.ErrorIs(t, err, domain.ErrArtifactNotFound)

	bogus, _ := json.Marshal(map[string]string{"format": "something-else"})
	_, err = store.Put(ctx, key, bogus)
	require.NoError(t, err)

	_, err = stage.Load(ctx, store, key, artifact.Latest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported artifact format")
}
