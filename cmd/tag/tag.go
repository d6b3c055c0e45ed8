// Package tag implements the tag command: rules and the trained cascades assign every
// product in every taxonomy, and the results are written as CSV and optionally indexed.
package tag

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd/common"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/dataprep"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/output"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/summary"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/tagger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

const defaultTop = 10

type options struct {
	input   string
	output  string
	summary bool
	index   bool
	top     int
}

// Command returns the tag command.
func Command(flags *common.GlobalFlags) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag products with the trained classifiers and the rule set",
		Long: `Tag reads a product file (.csv or .xlsx), evaluates the rule set, runs the
latest trained cascade of each taxonomy on the rows no rule fully decided and writes
one CSV record per product. Use "-" as output to write to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				return run(cmd, deps, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "product file (.csv or .xlsx)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "tagged_products.csv", "output CSV file, or - for stdout")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print category and price summaries")
	cmd.Flags().BoolVar(&opts.index, "index", false, "bulk index tagged products into Elasticsearch")
	cmd.Flags().IntVar(&opts.top, "top", defaultTop, "rows per summary table, 0 for all")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func run(cmd *cobra.Command, deps *common.CommandDeps, opts options) error {
	ctx := cmd.Context()
	cfg := deps.Config
	graphs := cfg.Graphs()

	t, err := dataprep.ReadFile(opts.input)
	if err != nil {
		return err
	}
	products, _, err := dataprep.NewPreparer(cfg.Hierarchy(), deps.Logger, deps.Telemetry).Products(t)
	if err != nil {
		return err
	}

	store, err := deps.Store()
	if err != nil {
		return err
	}
	predictors, err := tagger.LoadPredictors(ctx, graphs, store, cfg.CascadeOptions(), deps.Logger, deps.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to load classifiers (run train first): %w", err)
	}
	engine, err := deps.RuleEngine(ctx)
	if err != nil {
		return err
	}

	tagged, err := tagger.New(engine, graphs, predictors, deps.Logger, deps.Telemetry).Tag(ctx, products)
	if err != nil {
		return err
	}

	if err = writeOutput(cmd.OutOrStdout(), opts.output, tagged); err != nil {
		return err
	}
	infralogger.FromContext(ctx).Info("Products tagged",
		infralogger.Int("products", len(tagged)),
		infralogger.String("output", opts.output),
	)

	if opts.summary {
		renderSummary(cmd.OutOrStdout(), summary.Build(tagged), graphs, opts.top)
	}
	if opts.index {
		return index(cmd, deps, tagged)
	}
	return nil
}

func writeOutput(stdout io.Writer, path string, tagged []domain.TaggedProduct) error {
	if path == "-" {
		return output.WriteCSV(stdout, tagged)
	}
	return output.WriteCSVFile(path, tagged)
}

func index(cmd *cobra.Command, deps *common.CommandDeps, tagged []domain.TaggedProduct) error {
	client, err := output.NewElasticsearchClient(deps.Config.Elasticsearch.URL)
	if err != nil {
		return err
	}
	sink, err := output.NewElasticsearchSink(client, deps.Config.SinkConfig(), deps.Logger)
	if err != nil {
		return err
	}
	n, err := sink.Index(cmd.Context(), tagged)
	if err != nil {
		return fmt.Errorf("failed to index tagged products: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "indexed %d products into %s\n", n, deps.Config.Elasticsearch.Index)
	return nil
}

func renderSummary(w io.Writer, s summary.Summary, graphs []taxonomy.Graph, top int) {
	t := common.NewTable(w, fmt.Sprintf("Client A level 1 (%d products)", s.Total))
	t.AppendHeader(table.Row{"Category", "Products"})
	for _, c := range summary.Top(s.Level1, top) {
		t.AppendRow(table.Row{c.Key, c.Count})
	}
	t.Render()

	t = common.NewTable(w, "Client A level 1 > level 2")
	t.AppendHeader(table.Row{"Category", "Products"})
	for _, c := range summary.Top(s.Level2, top) {
		t.AppendRow(table.Row{c.Key, c.Count})
	}
	t.Render()

	t = common.NewTable(w, "Client B price by department")
	t.AppendHeader(table.Row{"Department", "Products", "Min", "Mean", "Max"})
	for _, d := range s.Departments {
		t.AppendRow(table.Row{
			d.Department, d.Count,
			fmt.Sprintf("%.2f", d.Min), fmt.Sprintf("%.2f", d.Mean), fmt.Sprintf("%.2f", d.Max),
		})
	}
	t.Render()

	t = common.NewTable(w, "Provenance")
	t.AppendHeader(table.Row{"Taxonomy", "Rule", "Model"})
	for _, g := range graphs {
		counts := s.Provenance[g.Name]
		t.AppendRow(table.Row{g.Name, counts[domain.ProvenanceRule], counts[domain.ProvenanceModel]})
	}
	t.Render()
}
