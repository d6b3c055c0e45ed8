// Package summary aggregates tagged products into the counts and price statistics
// reported after a tagging run.
package summary

import (
	"math"
	"sort"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

// Count is the number of products under one key.
type Count struct {
	Key   string
	Count int
}

// PriceStats describes prices within one Client B department.
type PriceStats struct {
	Department string
	Count      int
	Min        float64
	Mean       float64
	Max        float64
}

// Summary is the aggregate view of a tagged batch.
type Summary struct {
	Total int
	// Level1 counts Client A level-1 labels; Level2 counts level-1/level-2 pairs.
	Level1      []Count
	Level2      []Count
	Departments []PriceStats
	// Provenance counts rule and model decisions per taxonomy.
	Provenance map[string]map[domain.Provenance]int
}

// Build aggregates tagged. Counts are ordered by count descending, then key.
func Build(tagged []domain.TaggedProduct) Summary {
	s := Summary{Total: len(tagged), Provenance: make(map[string]map[domain.Provenance]int)}

	level1 := make(map[string]int)
	level2 := make(map[string]int)
	type acc struct {
		n             int
		sum, min, max float64
	}
	departments := make(map[string]*acc)

	for _, t := range tagged {
		for name, a := range t.Assignments {
			if s.Provenance[name] == nil {
				s.Provenance[name] = make(map[domain.Provenance]int)
			}
			s.Provenance[name][a.Provenance]++
		}

		if a, ok := t.Assignments[taxonomy.ClientA]; ok {
			l1 := a.Labels[taxonomy.StageLevel1]
			level1[l1]++
			level2[l1+taxonomy.DefaultSeparator+a.Labels[taxonomy.StageLevel2]]++
		}

		if b, ok := t.Assignments[taxonomy.ClientB]; ok {
			dept := b.Labels[taxonomy.StageDepartment]
			d := departments[dept]
			if d == nil {
				d = &acc{min: math.Inf(1), max: math.Inf(-1)}
				departments[dept] = d
			}
			d.n++
			d.sum += t.Price
			d.min = math.Min(d.min, t.Price)
			d.max = math.Max(d.max, t.Price)
		}
	}

	s.Level1 = sortedCounts(level1)
	s.Level2 = sortedCounts(level2)

	for dept, d := range departments {
		s.Departments = append(s.Departments, PriceStats{
			Department: dept,
			Count:      d.n,
			Min:        d.min,
			Mean:       d.sum / float64(d.n),
			Max:        d.max,
		})
	}
	sort.Slice(s.Departments, func(i, j int) bool {
		return s.Departments[i].Department < s.Departments[j].Department
	})
	return s
}

// Top returns at most n leading counts.
func Top(counts []Count, n int) []Count {
	if n <= 0 || n >= len(counts) {
		return counts
	}
	return counts[:n]
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, n := range m {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
