// Package stages implements the stages command, which lists the stage versions pinned
// by the latest manifest of each taxonomy.
package stages

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd/common"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/artifact"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
)

// Command returns the stages command.
func Command(flags *common.GlobalFlags) *cobra.Command {
	var (
		taxonomyName string
		version      int
	)

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List trained stages and their artifact versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				store, err := deps.Store()
				if err != nil {
					return err
				}
				found := false
				for _, g := range deps.Config.Graphs() {
					if taxonomyName != "" && g.Name != taxonomyName {
						continue
					}
					found = true
					m, err := artifact.LoadManifest(cmd.Context(), store, g.Name, version)
					if errors.Is(err, domain.ErrArtifactNotFound) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: not trained\n", g.Name)
						continue
					}
					if err != nil {
						return err
					}
					render(cmd.OutOrStdout(), m)
				}
				if !found {
					return fmt.Errorf("unknown taxonomy %q", taxonomyName)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&taxonomyName, "taxonomy", "t", "", "only show this taxonomy")
	cmd.Flags().IntVar(&version, "manifest-version", artifact.Latest, "manifest version, 0 for the latest")
	return cmd
}

func render(w io.Writer, m *artifact.Manifest) {
	t := common.NewTable(w, fmt.Sprintf("%s manifest v%d (run %s, %s)",
		m.Taxonomy, m.Version, m.RunID, m.TrainedAt.Format("2006-01-02 15:04:05")))
	t.AppendHeader(table.Row{"Stage", "Version", "Examples", "Classes", "Features", "Status"})
	for _, s := range m.Stages {
		t.AppendRow(table.Row{s.Name, fmt.Sprintf("v%d", s.Version), s.Examples, len(s.Labels), common.JoinOrDash(s.Features), "trained"})
	}
	for _, s := range m.Skipped {
		t.AppendRow(table.Row{s.Name, "-", "-", "-", "-", "skipped: " + s.Reason})
	}
	t.AppendFooter(table.Row{"effective depth", m.EffectiveDepth, "", "", "", fmt.Sprintf("min support %d", m.MinSupport)})
	t.Render()
}
