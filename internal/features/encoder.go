package features

import (
	"fmt"
	"math"
	"sort"
)

const (
	// DefaultPriceBins is the number of standardized log-price buckets.
	DefaultPriceBins = 8
	// priceZRange clamps standardized log-prices to [-priceZRange, priceZRange].
	priceZRange = 2.0
)

// Term is a weighted token produced by Encode.
type Term struct {
	Name   string
	Weight float64
}

// Encoder turns rows into weighted terms. Price statistics are captured at fit time
// and reused unchanged at prediction time.
type Encoder struct {
	Contract  Contract `json:"contract"`
	PriceMean float64  `json:"price_mean"`
	PriceStd  float64  `json:"price_std"`
	PriceBins int      `json:"price_bins"`
}

// FitEncoder captures log-price mean and standard deviation over rows.
func FitEncoder(contract Contract, rows []Row, bins int) Encoder {
	if bins <= 0 {
		bins = DefaultPriceBins
	}
	enc := Encoder{Contract: contract, PriceBins: bins}
	if len(rows) == 0 {
		return enc
	}

	var sum float64
	for _, r := range rows {
		sum += math.Log1p(r.Price)
	}
	mean := sum / float64(len(rows))

	var sq float64
	for _, r := range rows {
		d := math.Log1p(r.Price) - mean
		sq += d * d
	}
	enc.PriceMean = mean
	enc.PriceStd = math.Sqrt(sq / float64(len(rows)))
	return enc
}

// PriceBin returns the bucket index for price.
func (e Encoder) PriceBin(price float64) int {
	z := 0.0
	if e.PriceStd > 0 {
		z = (math.Log1p(price) - e.PriceMean) / e.PriceStd
	}
	z = math.Max(-priceZRange, math.Min(priceZRange, z))
	bin := int(math.Floor((z + priceZRange) / (2 * priceZRange) * float64(e.PriceBins)))
	if bin >= e.PriceBins {
		bin = e.PriceBins - 1
	}
	return bin
}

// Encode returns the row's terms sorted by name. Only contract features are read.
func (e Encoder) Encode(row Row) []Term {
	weights := make(map[string]float64)
	for _, name := range e.Contract {
		switch name {
		case TextFeature:
			counts := make(map[string]int)
			for _, tok := range Tokenize(row.Text) {
				counts[tok]++
			}
			for tok, n := range counts {
				weights["t:"+tok] = 1 + math.Log(float64(n))
			}
		case PriceFeature:
			weights[fmt.Sprintf("%s=b%d", PriceFeature, e.PriceBin(row.Price))] = 1
		default:
			if label, ok := row.Upstream[name]; ok {
				weights[name+"="+label] = 1
			}
		}
	}

	terms := make([]Term, 0, len(weights))
	for name, w := range weights {
		terms = append(terms, Term{Name: name, Weight: w})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Name < terms[j].Name })
	return terms
}
