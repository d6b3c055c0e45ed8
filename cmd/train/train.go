// Package train implements the train command, which fits the cascade of every taxonomy
// from a labeled product file and publishes new manifests.
package train

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd/common"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/cascade"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/dataprep"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/tagger"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/taxonomy"
)

// Command returns the train command.
func Command(flags *common.GlobalFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the cascade classifiers of every taxonomy",
		Long: `Train reads a labeled product file (.csv or .xlsx), trains each taxonomy's
stages in dependency order and publishes a manifest pinning the new stage versions.
Stages without enough labeled data are skipped and reported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				return run(cmd, deps, input)
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "labeled product file (.csv or .xlsx)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func run(cmd *cobra.Command, deps *common.CommandDeps, input string) error {
	ctx := cmd.Context()
	cfg := deps.Config
	start := time.Now()

	t, err := dataprep.ReadFile(input)
	if err != nil {
		return err
	}
	examples, prep, err := dataprep.NewPreparer(cfg.Hierarchy(), deps.Logger, deps.Telemetry).Examples(t)
	if err != nil {
		return err
	}
	renderPrep(cmd.OutOrStdout(), prep)

	store, err := deps.Store()
	if err != nil {
		return err
	}

	graphs := cfg.Graphs()
	reports, trainErr := tagger.TrainAll(ctx, graphs, store, cfg.CascadeOptions(), examples, deps.Logger, deps.Telemetry)
	renderReports(cmd.OutOrStdout(), graphs, reports)

	infralogger.FromContext(ctx).Info("Training finished",
		infralogger.Int("examples", len(examples)),
		infralogger.Int("taxonomies", len(reports)),
		infralogger.Duration("duration", time.Since(start)),
	)
	if trainErr != nil {
		return fmt.Errorf("training failed: %w", trainErr)
	}
	return nil
}

func renderPrep(w io.Writer, r *dataprep.Report) {
	t := common.NewTable(w, "Input")
	t.AppendHeader(table.Row{"Rows", "Kept", "Dropped", "Reason"})
	reasons := r.Reasons()
	if len(reasons) == 0 {
		t.AppendRow(table.Row{r.Rows, r.Kept, 0, "-"})
	}
	dropped := r.Dropped()
	for i, reason := range reasons {
		if i == 0 {
			t.AppendRow(table.Row{r.Rows, r.Kept, dropped[reason], reason})
			continue
		}
		t.AppendRow(table.Row{"", "", dropped[reason], reason})
	}
	t.Render()
}

func renderReports(w io.Writer, graphs []taxonomy.Graph, reports map[string]*cascade.TrainReport) {
	for _, g := range graphs {
		report, ok := reports[g.Name]
		if !ok {
			continue
		}
		t := common.NewTable(w, fmt.Sprintf("%s (manifest v%d, depth %d)", g.Name, report.ManifestVersion, report.EffectiveDepth))
		t.AppendHeader(table.Row{"Stage", "Status", "Version", "Examples", "Classes", "Dropped Classes", "Reason"})
		for _, s := range report.Stages {
			version := "-"
			if s.Version > 0 {
				version = fmt.Sprintf("v%d", s.Version)
			}
			reason := s.Reason
			if reason == "" {
				reason = "-"
			}
			t.AppendRow(table.Row{
				s.Name, s.Status, version, s.Examples, len(s.Labels), common.JoinOrDash(s.Dropped), reason,
			})
		}
		t.Render()
	}
}
