// Package cmd implements the command-line interface for the product tagger.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd/common"
	"github.com/jonesrussell/north-cloud/product-tagger/cmd/migrate"
	cmdrules "github.com/jonesrussell/north-cloud/product-tagger/cmd/rules"
	"github.com/jonesrussell/north-cloud/product-tagger/cmd/stages"
	"github.com/jonesrussell/north-cloud/product-tagger/cmd/tag"
	"github.com/jonesrussell/north-cloud/product-tagger/cmd/train"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// NewRootCommand builds the tagger command tree.
func NewRootCommand() *cobra.Command {
	flags := &common.GlobalFlags{}

	root := &cobra.Command{
		Use:   "tagger",
		Short: "Product catalog classification",
		Long: `tagger trains per-taxonomy cascade classifiers from labeled product exports and
tags new products with them, letting keyword rules override the models.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "config.yml", "config file")
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tagger version %s\n", Version)
		},
	})

	root.AddCommand(
		train.Command(flags),
		tag.Command(flags),
		stages.Command(flags),
		cmdrules.Command(flags),
		migrate.Command(flags),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
