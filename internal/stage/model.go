package stage

import (
	"math"
	"slices"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/features"
)

// naiveBayes is a multinomial naive Bayes model over weighted terms. Terms missing from
// the vocabulary contribute nothing.
type naiveBayes struct {
	Labels     []string    `json:"labels"`
	LogPriors  []float64   `json:"log_priors"`
	Vocabulary []string    `json:"vocabulary"`
	LogProbs   [][]float64 `json:"log_probs"`

	index map[string]int
}

func fitNaiveBayes(docs [][]features.Term, labels []string, opts Options) *naiveBayes {
	classes := sortedUnique(labels)
	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	vocabSet := make(map[string]struct{})
	for _, doc := range docs {
		for _, t := range doc {
			vocabSet[t.Name] = struct{}{}
		}
	}
	vocab := make([]string, 0, len(vocabSet))
	for name := range vocabSet {
		vocab = append(vocab, name)
	}
	slices.Sort(vocab)

	m := &naiveBayes{Labels: classes, Vocabulary: vocab}
	m.buildIndex()

	counts := make([][]float64, len(classes))
	for i := range counts {
		counts[i] = make([]float64, len(vocab))
	}
	docsPerClass := make([]int, len(classes))
	for d, doc := range docs {
		c := classIndex[labels[d]]
		docsPerClass[c]++
		for _, t := range doc {
			counts[c][m.index[t.Name]] += t.Weight
		}
	}

	alpha := opts.Smoothing
	m.LogPriors = make([]float64, len(classes))
	m.LogProbs = make([][]float64, len(classes))
	for c := range classes {
		if opts.BalancedPriors {
			m.LogPriors[c] = -math.Log(float64(len(classes)))
		} else {
			m.LogPriors[c] = math.Log(float64(docsPerClass[c]) / float64(len(docs)))
		}

		var total float64
		for _, n := range counts[c] {
			total += n
		}
		denom := math.Log(total + alpha*float64(len(vocab)))
		m.LogProbs[c] = make([]float64, len(vocab))
		for v, n := range counts[c] {
			m.LogProbs[c][v] = math.Log(n+alpha) - denom
		}
	}
	return m
}

func (m *naiveBayes) buildIndex() {
	m.index = make(map[string]int, len(m.Vocabulary))
	for i, name := range m.Vocabulary {
		m.index[name] = i
	}
}

// predict returns the highest-scoring label. Terms arrive sorted, so the sum order is
// fixed; ties resolve to the lexically smallest label.
func (m *naiveBayes) predict(terms []features.Term) string {
	best := -1
	bestScore := math.Inf(-1)
	for c := range m.Labels {
		score := m.LogPriors[c]
		for _, t := range terms {
			if v, ok := m.index[t.Name]; ok {
				score += t.Weight * m.LogProbs[c][v]
			}
		}
		if best < 0 || score > bestScore {
			best, bestScore = c, score
		}
	}
	return m.Labels[best]
}

func sortedUnique(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
