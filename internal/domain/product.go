// Package domain holds the data model shared by the tagger packages.
package domain

// Product is a cleaned catalog record.
type Product struct {
	ID           string  `json:"product_id"`
	Name         string  `json:"product_name"`
	About        *string `json:"about_product,omitempty"`
	Price        float64 `json:"actual_price"`
	CombinedText string  `json:"combined_text"`
}

// Labels maps stage names to labels for one taxonomy.
type Labels map[string]string

// TrainingExample is a product with its ground-truth labels, keyed by taxonomy name.
type TrainingExample struct {
	Product
	Truth map[string]Labels
}

// LabelFor returns the ground truth for a taxonomy stage, or "" when absent.
func (e TrainingExample) LabelFor(taxonomy, stage string) string {
	if e.Truth == nil {
		return ""
	}
	return e.Truth[taxonomy][stage]
}
