// Package output writes tagged products to CSV files and Elasticsearch.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

// Columns is the header of the tagged CSV output.
var Columns = []string{
	"product_id",
	"product_name",
	"actual_price",
	"predicted_clienta_category",
	"predicted_clientb_department",
	"predicted_clientb_price_tier",
	"clienta_provenance",
	"clientb_provenance",
}

// Record flattens one tagged product into the output columns.
func Record(t domain.TaggedProduct) []string {
	a := t.Assignment(taxonomy.ClientA)
	b := t.Assignment(taxonomy.ClientB)
	return []string{
		t.ID,
		t.Name,
		strconv.FormatFloat(t.Price, 'f', -1, 64),
		a.Category,
		b.Labels[taxonomy.StageDepartment],
		b.Labels[taxonomy.StagePriceTier],
		string(a.Provenance),
		string(b.Provenance),
	}
}

// WriteCSV writes the header and one record per product.
func WriteCSV(w io.Writer, tagged []domain.TaggedProduct) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range tagged {
		if err := cw.Write(Record(t)); err != nil {
			return fmt.Errorf("write csv record %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes tagged products to path, replacing any existing file.
func WriteCSVFile(path string, tagged []domain.TaggedProduct) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err = WriteCSV(f, tagged); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
